package orders

import "errors"

// Sentinel errors returned by market, matching, and IAA operations. Callers
// wrap these with fmt.Errorf("...: %w", Err...) and test with errors.Is.
var (
	ErrInvalidOffer        = errors.New("invalid offer")
	ErrInvalidBid          = errors.New("invalid bid")
	ErrInvalidTrade        = errors.New("invalid trade")
	ErrMarketReadOnly      = errors.New("market is read-only")
	ErrOfferNotFound       = errors.New("offer not found")
	ErrBidNotFound         = errors.New("bid not found")
	ErrInvalidBidOfferPair = errors.New("bid and offer cannot be matched")
	ErrMycoValidation      = errors.New("external matcher validation failed")
	ErrConfigInvalid       = errors.New("simulation configuration invalid")
)

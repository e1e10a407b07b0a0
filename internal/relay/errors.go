package relay

import "errors"

var (
	ErrSubscriberClosed = errors.New("subscriber closed")
	ErrDeliveryTimeout  = errors.New("subscriber exceeded delivery budget")
	ErrTerminated       = errors.New("subscription terminated")
)

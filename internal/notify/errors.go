package notify

import "errors"

// ErrNotification wraps every sink failure returned by Dispatcher.Notify.
var ErrNotification = errors.New("notify: delivery failed")

package retry

import "github.com/stanlemon/storm-dynamic-spout/message"

// NeverRetry disables retries entirely: RetryFurther is always false, so
// VirtualConsumer.Fail treats every failure as abandoned.
type NeverRetry struct{}

func (NeverRetry) Open(Config) error                            { return nil }
func (NeverRetry) Failed(message.ID)                             {}
func (NeverRetry) Acked(message.ID)                              {}
func (NeverRetry) RetryFurther(message.ID) bool                  { return false }
func (NeverRetry) NextFailedMessageToRetry() (message.ID, bool) { return message.ID{}, false }

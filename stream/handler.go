package stream

import (
	"errors"
	"sync"

	"k8s.io/klog/v2"
)

// Rejection sentinels raised during sample assembly. They travel through
// handlers like any other failure but are expected output of rejection
// sampling, so the default handler keeps them quiet after the first one.
var (
	ErrNoImages = errors.New("no images in sample")
	ErrOneImage = errors.New("only one image in sample")
)

// Handler decides what a pipeline stage does when one unit of work fails:
// return true to drop the unit and keep the stream going, false to end the
// stream. Reporting the failure is the handler's job, so a policy can
// silence kinds it expects.
type Handler func(err error) bool

// Stop ends the stream on the first failure. Suits tools and tests where a
// broken shard should be loud rather than skipped.
func Stop(error) bool { return false }

var loggedErrors sync.Map

// LogAndContinue drops every failed unit and keeps going, logging each
// distinct failure message once. A multi-day run over dirty data warns
// about each kind of corruption without flooding the log, and the stream
// itself never dies.
func LogAndContinue(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	if _, seen := loggedErrors.LoadOrStore(msg, struct{}{}); seen {
		return true
	}
	if errors.Is(err, ErrNoImages) || errors.Is(err, ErrOneImage) {
		klog.V(2).Infof("dropping rejected sample: %v", err)
	} else {
		klog.Warningf("dropping failed unit: %v", err)
	}
	return true
}

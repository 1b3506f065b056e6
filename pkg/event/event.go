// Package event defines the Event shape the transaction processor reports
// progress with, in place of original_source's transaction.rs
// TransactionEvent enum. Download progress does not go through Event: the
// download manager keeps its own (downloaded, total) progress callback.
package event

import "github.com/divvun/pahkat/pkg/pkgkey"

// Kind distinguishes what an Event reports.
type Kind int

const (
	KindDownloadProgress Kind = iota
	KindInstalling
	KindUninstalling
	KindCompleted
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindDownloadProgress:
		return "download-progress"
	case KindInstalling:
		return "installing"
	case KindUninstalling:
		return "uninstalling"
	case KindCompleted:
		return "completed"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is emitted by transaction processing to a caller-supplied sink.
// Current/Total are only meaningful for KindDownloadProgress, which no
// operation in this module emits.
type Event struct {
	Kind       Kind
	PackageKey pkgkey.Key
	Message    string
	Current    int64
	Total      int64
	Err        error
}

// Sink receives Events. Returning false requests cancellation, mirroring
// original_source's `Fn(PackageKey, TransactionEvent) -> bool` and
// download.rs's progress-callback-returns-bool contract.
type Sink func(Event) bool

package cartstore

// Kind classifies a user-facing notification.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Notifier receives user-facing messages. Rendering them is up to the caller.
type Notifier interface {
	Notify(kind Kind, message string)
}

type NotifierFunc func(kind Kind, message string)

func (f NotifierFunc) Notify(kind Kind, message string) { f(kind, message) }

type nopNotifier struct{}

func (nopNotifier) Notify(Kind, string) {}

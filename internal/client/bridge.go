// Package client implements the app-side push enrollment flow: making sure
// a service worker controls the page, walking the permission and subscribe
// steps, and persisting the resulting subscription to the backend.
//
// Browser capabilities (service worker registration, the Push API) are
// modeled as narrow interfaces injected into the guard and manager, so the
// flow logic is testable without a browser and portable across embedders
// (webview hosts, test harnesses).
package client

import "context"

// PermissionState mirrors the notification permission values a user agent
// reports.
type PermissionState string

const (
	PermissionDefault PermissionState = "default"
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
)

// Registration is a service worker registration as seen by the enrollment
// flow.
type Registration interface {
	// Waiting reports whether an installed worker is parked in the waiting
	// state, held back by an older active worker.
	Waiting() bool

	// PostSkipWaiting tells the waiting worker to activate immediately.
	PostSkipWaiting()
}

// ServiceWorkerBridge exposes the host's service worker container.
type ServiceWorkerBridge interface {
	// Supported reports whether service workers are available at all.
	Supported() bool

	// ControllerScriptURL returns the script URL of the worker currently
	// controlling the page, or "" when the page is uncontrolled.
	ControllerScriptURL() string

	// Register registers the worker script and returns its registration.
	Register(ctx context.Context, scriptURL string) (Registration, error)

	// ControllerChange returns a channel that receives a signal each time
	// control of the page changes hands.
	ControllerChange() <-chan struct{}
}

// PushSubscription is an active browser push subscription.
type PushSubscription struct {
	Endpoint string
	P256dh   string
	Auth     string
}

// PushBridge exposes the host's Push API surface.
type PushBridge interface {
	// Supported reports whether the Push API is available.
	Supported() bool

	// PermissionState returns the current notification permission without
	// prompting.
	PermissionState(ctx context.Context) (PermissionState, error)

	// RequestPermission prompts the user and returns the resulting state.
	RequestPermission(ctx context.Context) (PermissionState, error)

	// Subscription returns the current push subscription, or nil when none
	// exists.
	Subscription(ctx context.Context) (*PushSubscription, error)

	// Subscribe creates a push subscription bound to the given application
	// server key (a decoded 65-byte P-256 point).
	Subscribe(ctx context.Context, appServerKey []byte) (*PushSubscription, error)

	// Unsubscribe drops the current push subscription if one exists.
	Unsubscribe(ctx context.Context) error
}

package sapiom

// Hooks are observational callbacks fired at decision points of both
// handlers. Returning from a hook never changes control flow: an error that
// would propagate still propagates after the hook runs, and a denial stays
// a denial. Nil fields are skipped.
type Hooks struct {
	// OnAuthorizationPending fires when a pre-request transaction is
	// created in a non-terminal state, before polling begins.
	OnAuthorizationPending func(transactionID, url string)

	// OnAuthorizationSuccess fires once per request when authorization
	// resolves positively and the transaction header is attached.
	OnAuthorizationSuccess func(transactionID, url string)

	// OnAuthorizationDenied fires when a pre-request transaction resolves
	// DENIED or CANCELLED, before the denial is raised or suppressed.
	OnAuthorizationDenied func(transactionID, url string)

	// OnPaymentRequired fires when a 402 is recognized and payment data
	// has been extracted, before settlement is attempted.
	OnPaymentRequired func(transactionID string, payment *PaymentData)

	// OnPaymentSuccess fires after the retried request succeeds.
	OnPaymentSuccess func(transactionID string)

	// OnPaymentFailure fires when payment settlement fails for any reason,
	// including denials surfaced as synthesized 403 responses. The error is
	// still propagated (or the 403 still returned) afterwards.
	OnPaymentFailure func(transactionID string, err error)
}

// WithHooks replaces the full hook set.
func WithHooks(hooks Hooks) Option {
	return func(c *Config) {
		c.Hooks = hooks
	}
}

// WithOnAuthorizationPending registers the pending callback.
func WithOnAuthorizationPending(fn func(transactionID, url string)) Option {
	return func(c *Config) {
		c.Hooks.OnAuthorizationPending = fn
	}
}

// WithOnAuthorizationSuccess registers the success callback.
func WithOnAuthorizationSuccess(fn func(transactionID, url string)) Option {
	return func(c *Config) {
		c.Hooks.OnAuthorizationSuccess = fn
	}
}

// WithOnAuthorizationDenied registers the denial callback.
func WithOnAuthorizationDenied(fn func(transactionID, url string)) Option {
	return func(c *Config) {
		c.Hooks.OnAuthorizationDenied = fn
	}
}

// WithOnPaymentRequired registers the payment-required callback.
func WithOnPaymentRequired(fn func(transactionID string, payment *PaymentData)) Option {
	return func(c *Config) {
		c.Hooks.OnPaymentRequired = fn
	}
}

// WithOnPaymentSuccess registers the payment success callback.
func WithOnPaymentSuccess(fn func(transactionID string)) Option {
	return func(c *Config) {
		c.Hooks.OnPaymentSuccess = fn
	}
}

// WithOnPaymentFailure registers the payment failure callback.
func WithOnPaymentFailure(fn func(transactionID string, err error)) Option {
	return func(c *Config) {
		c.Hooks.OnPaymentFailure = fn
	}
}

func (h Hooks) authorizationPending(id, url string) {
	if h.OnAuthorizationPending != nil {
		h.OnAuthorizationPending(id, url)
	}
}

func (h Hooks) authorizationSuccess(id, url string) {
	if h.OnAuthorizationSuccess != nil {
		h.OnAuthorizationSuccess(id, url)
	}
}

func (h Hooks) authorizationDenied(id, url string) {
	if h.OnAuthorizationDenied != nil {
		h.OnAuthorizationDenied(id, url)
	}
}

func (h Hooks) paymentRequired(id string, payment *PaymentData) {
	if h.OnPaymentRequired != nil {
		h.OnPaymentRequired(id, payment)
	}
}

func (h Hooks) paymentSuccess(id string) {
	if h.OnPaymentSuccess != nil {
		h.OnPaymentSuccess(id)
	}
}

func (h Hooks) paymentFailure(id string, err error) {
	if h.OnPaymentFailure != nil {
		h.OnPaymentFailure(id, err)
	}
}

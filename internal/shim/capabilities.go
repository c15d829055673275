package shim

// Capabilities describes which network primitives the host offers.
type Capabilities struct {
	Fetch  bool // promise-style client with context cancellation
	Legacy bool // callback-style client
	Beacon bool // fire-and-forget send that survives page teardown
}

// Variant is the transport family chosen once at startup.
type Variant int

const (
	VariantNone Variant = iota
	VariantModern
	VariantLegacy
)

func (v Variant) String() string {
	switch v {
	case VariantModern:
		return "modern-transport"
	case VariantLegacy:
		return "legacy-transport"
	}
	return "none"
}

// FullCapabilities is what a Go host always has.
func FullCapabilities() Capabilities {
	return Capabilities{Fetch: true, Legacy: true, Beacon: true}
}

// Select picks the variant for c. Modern transport is preferred.
func Select(c Capabilities) Variant {
	switch {
	case c.Fetch:
		return VariantModern
	case c.Legacy:
		return VariantLegacy
	}
	return VariantNone
}

// HasFallback reports whether a secondary transport is available after the
// variant's primary.
func (c Capabilities) HasFallback() bool {
	return c.Fetch && c.Legacy
}

package password

// Clear stores passwords unchanged. It is the only reversible scheme.
type Clear struct{}

// NewClear returns the CLEAR scheme.
func NewClear() *Clear { return &Clear{} }

func (*Clear) Name() string             { return "CLEAR" }
func (*Clear) AuthPasswordName() string { return "" }
func (*Clear) IsReversible() bool       { return true }

func (*Clear) Encode(plain []byte) ([]byte, error) {
	return append([]byte(nil), plain...), nil
}

func (c *Clear) EncodeWithScheme(plain []byte) ([]byte, error) {
	return withTag(c.Name(), plain), nil
}

func (*Clear) Matches(plain, stored []byte) bool {
	return constantTimeEqual(plain, stored)
}

func (*Clear) Plaintext(stored []byte) ([]byte, error) {
	return append([]byte(nil), stored...), nil
}

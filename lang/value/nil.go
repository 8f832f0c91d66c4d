package value

// NilType is the type of Nil. It is represented as a defined byte type
// rather than struct{} so that Nil can be a typed constant.
type NilType byte

// Nil is the sole value of type NilType.
const Nil = NilType(0)

var _ Value = Nil

func (NilType) String() string { return "nil" }
func (NilType) Type() Type     { return TypeNil }

package sql

// Executor is an interface for executing raw statement.
type Executor interface {
	Exec(string, Encoder, Decoder) (int, error)
}

var (
	_ Executor = (*Database)(nil)
	_ Executor = (*Tx)(nil)
)

package cli

// CLI error codes (E200-E299). Load and schema codes come from the
// compiler package.
const (
	ErrCodeDecode  = "E201" // command is not a valid AST envelope
	ErrCodeFilter  = "E202" // bad --where, --order-by or field flag
	ErrCodeExecute = "E203" // engine rejected or failed the command
	ErrCodeStore   = "E204" // store read failed
)

package cli

import (
	"fmt"
	"os"

	"github.com/quarterdeck/core/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
	}
}

// Handle provides user-friendly error messages based on error type
func (h *ErrorHandler) Handle(err error) error {
	// Check for specific error codes
	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(os.Stderr, "❌ Configuration not found. Create a quarterdeck.yml in your project root.\n")
		return err

	case errors.ErrCodeGatewayUnreachable:
		if qdErr, ok := err.(*errors.QuarterdeckError); ok {
			fmt.Fprintf(os.Stderr, "❌ Cannot reach gateway at %s\n", qdErr.Details["url"])
			fmt.Fprintf(os.Stderr, "Check that the gateway is running, or start a local one with 'qd dev serve'.\n")
		}
		return err

	case errors.ErrCodeSessionNotFound:
		if qdErr, ok := err.(*errors.QuarterdeckError); ok {
			fmt.Fprintf(os.Stderr, "❌ Session '%s' not found\n", qdErr.Details["session_id"])
			fmt.Fprintf(os.Stderr, "Run 'qd sessions' to see available sessions.\n")
		}
		return err

	case errors.ErrCodePushExhausted:
		fmt.Fprintf(os.Stderr, "❌ Gave up reconnecting to the push channel.\n")
		fmt.Fprintf(os.Stderr, "Check the gateway and reconnect with 'qd sync'.\n")
		return err

	case errors.ErrCodeConfigValidation:
		fmt.Fprintf(os.Stderr, "❌ Configuration is invalid:\n%v\n", err)
		fmt.Fprintf(os.Stderr, "Run 'qd config validate' for details.\n")
		return err

	default:
		// Generic error handling
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)

		// If verbose mode, show full error details
		if h.Verbose {
			if qdErr, ok := err.(*errors.QuarterdeckError); ok {
				fmt.Fprintf(os.Stderr, "\nError details:\n%s\n", qdErr.ToJSON())
			}
		}
		return err
	}
}

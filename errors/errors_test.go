package errors_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	commonErrors "github.com/Deepreo/zeit/errors"
)

func TestExtendError(t *testing.T) {
	baseErr := errors.New("base error")

	t.Run("Wrap and Unwrap", func(t *testing.T) {
		infraErr := commonErrors.InfraError(baseErr)

		if !commonErrors.Is(baseErr, infraErr) {
			t.Error("Expected infraErr to be baseErr")
		}

		if !errors.Is(infraErr, baseErr) {
			t.Error("Expected infraErr to wrap baseErr")
		}

		unwrapped := errors.Unwrap(infraErr)
		if unwrapped != baseErr {
			t.Errorf("Expected unwrapped error to be baseErr, got %v", unwrapped)
		}
	})

	t.Run("Code and Metadata", func(t *testing.T) {
		err := commonErrors.ConfigurationError(baseErr).
			WithCode("SCHED_CFG_001").
			WithMetadata("schedule", "nightly")

		if err.Code != "SCHED_CFG_001" {
			t.Errorf("Expected code 'SCHED_CFG_001', got %s", err.Code)
		}

		if val, ok := err.Metadata["schedule"]; !ok || val != "nightly" {
			t.Errorf("Expected metadata schedule=nightly, got %v", val)
		}

		expectedMsg := "[SCHED_CFG_001] base error"
		if err.Error() != expectedMsg {
			t.Errorf("Expected error message '%s', got '%s'", expectedMsg, err.Error())
		}
	})

	t.Run("StackTrace", func(t *testing.T) {
		err := commonErrors.CallbackError(baseErr)
		if err.StackTrace == "" {
			t.Error("Expected stack trace to be present")
		}
		if !strings.Contains(err.StackTrace, "errors_test.go") {
			t.Error("Expected stack trace to contain test file name")
		}
	})

	t.Run("Rewrap keeps level", func(t *testing.T) {
		notFound := commonErrors.NotFoundError(baseErr)
		again := commonErrors.InfraError(notFound)
		if again != notFound {
			t.Error("Expected an ExtendError to be returned unchanged")
		}
		if !commonErrors.IsNotFoundError(again) {
			t.Error("Expected level to stay not_found")
		}

		callback := commonErrors.CallbackError(baseErr)
		if commonErrors.CallbackError(callback) != callback {
			t.Error("Expected a callback error to be returned unchanged")
		}
	})

	t.Run("Callback failures are reclassified", func(t *testing.T) {
		notFound := commonErrors.NotFoundError(baseErr).WithCode("SCHED_404")
		cbErr := commonErrors.CallbackError(notFound)
		if cbErr == notFound {
			t.Fatal("Expected a new callback layer")
		}
		if commonErrors.GetLevel(cbErr) != commonErrors.ERR_CALLBACK {
			t.Errorf("Expected callback level, got %s", commonErrors.GetLevel(cbErr))
		}
		if !commonErrors.Is(notFound, cbErr) || !errors.Is(cbErr, baseErr) {
			t.Error("Expected the returned error to stay matchable")
		}
	})

	t.Run("GetLevel through wrapping", func(t *testing.T) {
		err := fmt.Errorf("start: %w", commonErrors.ConfigurationError(baseErr))
		if commonErrors.GetLevel(err) != commonErrors.ERR_CONFIGURATION {
			t.Errorf("Expected configuration level, got %s", commonErrors.GetLevel(err))
		}
		if commonErrors.GetLevel(baseErr) != commonErrors.ERR_UNKNOWN {
			t.Error("Expected plain errors to report unknown level")
		}
	})

	t.Run("Helper Functions", func(t *testing.T) {
		infraErr := commonErrors.InfraError(baseErr)
		if !commonErrors.IsInfraError(infraErr) {
			t.Error("Expected IsInfraError to return true")
		}

		cbErr := commonErrors.CallbackError(baseErr)
		if !commonErrors.IsCallbackError(cbErr) {
			t.Error("Expected IsCallbackError to return true")
		}

		if commonErrors.IsConfigurationError(nil) {
			t.Error("Expected nil error not to be a configuration error")
		}
	})
}

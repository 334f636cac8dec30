package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"sentinel auth", fmt.Errorf("call failed: %w", ErrAuth), KindAuth},
		{"sentinel rate limit", fmt.Errorf("call failed: %w", ErrRateLimited), KindRateLimited},
		{"sentinel model", ErrModelNotFound, KindModelNotFound},
		{"bedrock access denied", &types.AccessDeniedException{}, KindAuth},
		{"bedrock throttled", &types.ThrottlingException{}, KindRateLimited},
		{"bedrock unavailable", &types.ServiceUnavailableException{}, KindRateLimited},
		{"bedrock missing model", &types.ResourceNotFoundException{}, KindModelNotFound},
		{"401 in message", errors.New("API returned unexpected status code: 401"), KindAuth},
		{"invalid key in message", errors.New("Incorrect API key provided"), KindAuth},
		{"429 in message", errors.New("status code: 429 Too Many Requests"), KindRateLimited},
		{"overloaded in message", errors.New("anthropic: overloaded_error"), KindRateLimited},
		{"plain failure", errors.New("connection reset by peer"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(fmt.Errorf("wrapped: %w", ErrAuth)) {
		t.Error("auth errors must not be retryable")
	}
	if !Retryable(errors.New("i/o timeout")) {
		t.Error("unknown errors are considered transient")
	}
	if !Retryable(fmt.Errorf("wrapped: %w", ErrRateLimited)) {
		t.Error("rate limits are retryable")
	}
}

package fees_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	scanner "github.com/goliatone/go-scanner"
	"github.com/goliatone/go-scanner/fees"
	"github.com/goliatone/go-scanner/verifier"
)

type MockChecker struct {
	mock.Mock
}

func (m *MockChecker) VerifyDues(ctx context.Context, token scanner.Token) (verifier.DuesResult, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(verifier.DuesResult), args.Error(1)
}

func TestProcessorPaid(t *testing.T) {
	checker := &MockChecker{}
	checker.On("VerifyDues", mock.Anything, scanner.Token("T123")).
		Return(verifier.DuesResult{Approved: true, Status: "paid", StudentName: "김민지"}, nil).Once()

	process := fees.NewProcessor(checker, fees.Copy{})
	outcome, err := process(context.Background(), "T123")
	require.NoError(t, err)

	cp := fees.DefaultCopy()
	assert.Equal(t, scanner.OutcomeSuccess, outcome.Status)
	assert.Equal(t, "김민지 학생은 학생회비를 납부했습니다.", outcome.Message)
	assert.Equal(t, cp.PaidLabel, outcome.ActionLabel)
	assert.Equal(t, cp.PaidSpeech, outcome.Speech)
	checker.AssertExpectations(t)
}

func TestProcessorClassification(t *testing.T) {
	tests := []struct {
		name   string
		result verifier.DuesResult
		err    error
		status scanner.OutcomeStatus
	}{
		{"unpaid", verifier.DuesResult{Status: "unpaid", StudentName: "Ada"}, nil, scanner.OutcomeDenied},
		{"unknown student", verifier.DuesResult{Status: "not_found"}, nil, scanner.OutcomeInvalid},
		{"invalid token", verifier.DuesResult{}, scanner.NewInvalidToken("unrecognized token"), scanner.OutcomeInvalid},
		{"denied by backend", verifier.DuesResult{}, scanner.NewBusinessDenied("dues unpaid"), scanner.OutcomeDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := &MockChecker{}
			checker.On("VerifyDues", mock.Anything, mock.Anything).Return(tt.result, tt.err).Once()

			outcome, err := fees.NewProcessor(checker, fees.Copy{})(context.Background(), "T1")
			require.NoError(t, err)
			assert.Equal(t, tt.status, outcome.Status)
			assert.NotEmpty(t, outcome.Message)
			assert.True(t, outcome.HasSpeech())
		})
	}
}

func TestProcessorReturnsTransportErrors(t *testing.T) {
	checker := &MockChecker{}
	failure := scanner.NewTransportFailure(errors.New("connection refused"), "verification request failed")
	checker.On("VerifyDues", mock.Anything, mock.Anything).Return(verifier.DuesResult{}, failure).Once()

	_, err := fees.NewProcessor(checker, fees.Copy{})(context.Background(), "T1")
	require.Error(t, err)
	assert.True(t, scanner.IsTransportFailure(err))
}

func TestProcessorWithoutChecker(t *testing.T) {
	_, err := fees.NewProcessor(nil, fees.Copy{})(context.Background(), "T1")
	require.Error(t, err)
	assert.True(t, scanner.IsTransportFailure(err))
}

func TestCopyOverridesAndNameFallback(t *testing.T) {
	checker := &MockChecker{}
	checker.On("VerifyDues", mock.Anything, mock.Anything).
		Return(verifier.DuesResult{Status: "unpaid"}, nil).Once()

	process := fees.NewProcessor(checker, fees.Copy{UnpaidMessage: "{name}: unpaid", UnpaidSpeech: " "})
	outcome, err := process(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, "해당: unpaid", outcome.Message)
	assert.Equal(t, fees.DefaultCopy().UnpaidSpeech, outcome.Speech)
}

func TestDefaultScannerConfigIsValid(t *testing.T) {
	cfg := fees.DefaultScannerConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/fees", cfg.BackRoute)
	assert.Equal(t, fees.DefaultCopy().PaidLabel, cfg.Copy[scanner.OutcomeSuccess].ActionLabel)
}

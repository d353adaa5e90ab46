package contracts

import (
	"errors"
	"fmt"
)

// ErrorKind 파이프라인 오류 분류
type ErrorKind string

const (
	KindMissingEventData      ErrorKind = "MissingEventData"
	KindStatisticalFit        ErrorKind = "StatisticalFitError"
	KindOptimizationExhausted ErrorKind = "OptimizationExhausted"
	KindNoComparableData      ErrorKind = "NoComparableData"
	KindArtifactIO            ErrorKind = "ArtifactIOError"
	KindMetricsPublish        ErrorKind = "MetricsPublishError"
)

// Sentinels for errors.Is
var (
	ErrMissingEventData      = &PipelineError{Kind: KindMissingEventData}
	ErrStatisticalFit        = &PipelineError{Kind: KindStatisticalFit}
	ErrOptimizationExhausted = &PipelineError{Kind: KindOptimizationExhausted}
	ErrNoComparableData      = &PipelineError{Kind: KindNoComparableData}
	ErrArtifactIO            = &PipelineError{Kind: KindArtifactIO}
	ErrMetricsPublish        = &PipelineError{Kind: KindMetricsPublish}
)

// PipelineError 단계(step) 정보를 포함한 분류된 오류
// ⭐ SSOT: 스테이지가 반환하는 모든 실패는 이 타입으로 감싼다
type PipelineError struct {
	Kind ErrorKind
	Step string
	Err  error
}

// NewError creates a PipelineError
func NewError(kind ErrorKind, step string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Step: step, Err: err}
}

// Errorf creates a PipelineError with a formatted cause
func Errorf(kind ErrorKind, step, format string, args ...interface{}) *PipelineError {
	return &PipelineError{Kind: kind, Step: step, Err: fmt.Errorf(format, args...)}
}

func (e *PipelineError) Error() string {
	switch {
	case e.Step != "" && e.Err != nil:
		return fmt.Sprintf("%s at %s: %v", e.Kind, e.Step, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Step != "":
		return fmt.Sprintf("%s at %s", e.Kind, e.Step)
	default:
		return string(e.Kind)
	}
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is matches any PipelineError of the same kind
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf 오류 체인에서 첫 번째 PipelineError의 분류를 찾는다
func KindOf(err error) (ErrorKind, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

package booking

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing booking operation.
type OperationLog struct {
	Operation string
	ActorID   AccountID
	SlotID    SlotID
	TargetID  AccountID
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithWeatherRater wires the weather evaluator consulted by ConfirmEvent and
// configuration updates. Without one, freshly confirmed events carry an
// unknown rating until the background refresher reaches them.
func WithWeatherRater(rater WeatherRater) ServiceOption {
	return func(service *Service) {
		service.weather = rater
	}
}

package ports

import "github.com/rd-openday18/pubsub/internal/domain"

// Collector produces readings into out until its source ends or Stop
// is called. The collector owns out from Start on and closes it when
// production stops, so consumers can range over the channel.
type Collector interface {
	Start(out chan<- *domain.Reading) error
	Stop() error
}

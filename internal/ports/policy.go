package ports

import "time"

type Policy struct {
	MaxQueueLen       int           `yaml:"max_queue_len"`
	MaxQueueSizeBytes int64         `yaml:"max_queue_size_bytes"`
	MaxBatchSize      int           `yaml:"max_batch_size"`
	IdleSleep         time.Duration `yaml:"idle_sleep"`

	PublishTimeout time.Duration `yaml:"publish_timeout"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
	BackoffMax     time.Duration `yaml:"backoff_max"`

	OnQueueFull string `yaml:"on_queue_full"` // "block", "drop_oldest", "reject"
}

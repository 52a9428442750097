package notify

import (
	"time"

	"go.uber.org/zap"
)

type Options struct {
	AMQPURL        string // empty: log only
	Queue          string
	From           string
	DoctorOverride string
	Location       *time.Location
}

// Open picks the notifier for the process: mail over RabbitMQ when an AMQP URL is set,
// log lines otherwise. The returned func releases the broker connection.
func Open(o Options, log *zap.Logger) (Notifier, func(), error) {
	if o.AMQPURL == "" {
		log.Info("AMQP_URL not set, notifications are logged only")
		return NewLogNotifier(log), func() {}, nil
	}

	conn, err := DialAMQP(o.AMQPURL)
	if err != nil {
		return nil, nil, err
	}
	mailer, err := NewAMQPMailer(conn, o.Queue)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	log.Info("mail notifications enabled", zap.String("queue", o.Queue))

	closeFn := func() {
		if err := mailer.Close(); err != nil {
			log.Warn("error closing mail channel", zap.Error(err))
		}
		if err := conn.Close(); err != nil {
			log.Warn("error closing amqp connection", zap.Error(err))
		}
	}

	return NewMailNotifier(mailer, MailConfig{
		From:           o.From,
		DoctorOverride: o.DoctorOverride,
		Location:       o.Location,
	}), closeFn, nil
}

package mq

import (
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

// deadLetterExchange {exchange}.dlx
func deadLetterExchange(exchange string) string {
	return exchange + ".dlx"
}

// DeclareDeadLetter 声明死信 exchange 与 {queue}.dlq，并返回主队列需要的参数
func DeclareDeadLetter(ch *amqp091.Channel, exchange, queue, routingKey string) (amqp091.Table, error) {
	dlx := deadLetterExchange(exchange)
	if err := DeclareExchange(ch, dlx); err != nil {
		return nil, fmt.Errorf("failed to declare DLX: %w", err)
	}

	q, err := ch.QueueDeclare(
		queue+".dlq",
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, routingKey, dlx, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind DLQ queue: %w", err)
	}

	return amqp091.Table{
		"x-dead-letter-exchange":    dlx,
		"x-dead-letter-routing-key": routingKey,
	}, nil
}

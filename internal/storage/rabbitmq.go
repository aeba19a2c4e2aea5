package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"screening-agent-go/internal/config"
)

// RabbitMQ 消息队列适配器，发布筛选完成事件
type RabbitMQ struct {
	conn *amqp.Connection
	mu   sync.Mutex
	ch   *amqp.Channel
	cfg  *config.RabbitMQConfig
}

// NewRabbitMQ 建立RabbitMQ连接并声明事件交换机
func NewRabbitMQ(cfg *config.RabbitMQConfig) (*RabbitMQ, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("RabbitMQ配置不能为空")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接RabbitMQ失败: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("打开RabbitMQ通道失败: %w", err)
	}

	r := &RabbitMQ{
		conn: conn,
		ch:   ch,
		cfg:  cfg,
	}

	if err := r.EnsureExchange(cfg.EventsExchange, "topic", true); err != nil {
		_ = r.Close()
		return nil, err
	}

	return r, nil
}

// Close 关闭通道和连接
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// EnsureExchange 声明交换机，幂等
func (r *RabbitMQ) EnsureExchange(exchangeName, exchangeType string, durable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.ch.ExchangeDeclare(
		exchangeName,
		exchangeType,
		durable,
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("声明交换机失败 (%s): %w", exchangeName, err)
	}
	return nil
}

// PublishJSON 将数据序列化为JSON后发布到指定交换机
func (r *RabbitMQ) PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	deliveryMode := amqp.Transient
	if persistent {
		deliveryMode = amqp.Persistent
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.ch.PublishWithContext(ctx,
		exchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: deliveryMode,
			Timestamp:    time.Now(),
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("发布消息失败 (exchange=%s, key=%s): %w", exchangeName, routingKey, err)
	}
	return nil
}

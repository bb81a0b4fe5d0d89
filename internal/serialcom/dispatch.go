package serialcom

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// idleBackoff 读超时或 EOF 后的等待时间，避免空转
const idleBackoff = 10 * time.Millisecond

// Subscriber 接收数据的回调。返回 ErrConnectionClosed 会停止本次分发。
// 同一块数据会传给所有订阅者，订阅者不应修改它。
type Subscriber func(data []byte) error

// SubscriptionID 订阅标识
type SubscriptionID string

type subscriber struct {
	id SubscriptionID
	fn Subscriber
}

// SubscriberError 订阅者返回的错误
type SubscriberError struct {
	ID  SubscriptionID
	Err error
}

// DispatchResult 一次分发的结果
type DispatchResult struct {
	Bytes   int               // 数据长度
	Invoked int               // 被调用的订阅者数量
	Skipped int               // 因连接关闭跳过的订阅者数量
	Failed  []SubscriberError // 返回了其他错误的订阅者
	Err     error             // ErrConnectionClosed 表示分发中途连接已关闭
}

// Closed 本次分发是否因连接关闭而中止
func (r DispatchResult) Closed() bool {
	return errors.Is(r.Err, ErrConnectionClosed)
}

// readLoop 读取协程：把设备上的数据按读到的长度交给分发协程
func (p *port) readLoop(sess *session, name string, dev Device, chunks chan<- []byte) {
	defer close(chunks)

	buf := make([]byte, readBufferSize)
	for {
		select {
		case <-sess.done:
			return
		default:
		}

		n, err := dev.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case chunks <- chunk:
			case <-sess.done:
				return
			}
		}

		if err != nil {
			select {
			case <-sess.done:
				return
			default:
			}
			// 部分 USB-CDC 设备和读超时会返回 EOF
			if errors.Is(err, io.EOF) {
				time.Sleep(idleBackoff)
				continue
			}
			p.lost(sess, err)
			return
		}

		if n == 0 {
			time.Sleep(idleBackoff)
		}
	}
}

// dispatchLoop 分发协程，退出时关闭 sess.exited
func (p *port) dispatchLoop(sess *session, chunks <-chan []byte) {
	defer close(sess.exited)
	sess.dispatcher.Store(goroutineID())

	for {
		select {
		case <-sess.done:
			return
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			// 断开后队列中剩余的数据不再分发
			select {
			case <-sess.done:
				return
			default:
			}
			result := p.dispatch(chunk)
			if p.observer != nil {
				p.observer(result)
			}
		}
	}
}

// dispatch 按订阅顺序把数据交给订阅者
func (p *port) dispatch(data []byte) DispatchResult {
	p.mu.RLock()
	connected := p.connected
	subs := make([]subscriber, len(p.subs))
	copy(subs, p.subs)
	p.mu.RUnlock()

	result := DispatchResult{Bytes: len(data)}
	if !connected {
		result.Skipped = len(subs)
		result.Err = ErrConnectionClosed
		return result
	}

	for i, s := range subs {
		if !p.isConnected() {
			result.Skipped = len(subs) - i
			result.Err = ErrConnectionClosed
			break
		}

		result.Invoked++
		err := p.invoke(s, data)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrConnectionClosed) {
			result.Skipped = len(subs) - i - 1
			result.Err = err
			break
		}

		result.Failed = append(result.Failed, SubscriberError{ID: s.id, Err: err})
		p.logger.Warn("订阅者处理数据失败",
			zap.String("subscription", string(s.id)),
			zap.Int("bytes", len(data)),
			zap.Error(err))
	}

	return result
}

// invoke 调用订阅者，panic 转换为错误
func (p *port) invoke(s subscriber, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return s.fn(data)
}

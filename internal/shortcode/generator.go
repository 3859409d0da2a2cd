package shortcode

import (
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

const (
	// Alphabet 是 URL 安全字符集，与 nanoid 默认字符集一致
	Alphabet = "_-0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// DefaultLength 是生成的短码的默认长度
	DefaultLength = 8
	// refillInterval 是检查预生成池水位的间隔
	refillInterval = 5 * time.Second
)

// Generator 负责生成候选短码。
// 候选短码不检查数据库，唯一性由插入时的冲突检测保证。
type Generator struct {
	length    int
	codeChan  chan string
	mu        sync.Mutex
	isFilling bool
	stopChan  chan struct{}
	stopOnce  sync.Once
	logger    *zap.SugaredLogger
}

// NewGenerator 创建生成器，poolSize 为 0 时不预生成
func NewGenerator(length, poolSize int, logger *zap.SugaredLogger) *Generator {
	if length <= 0 {
		length = DefaultLength
	}
	g := &Generator{
		length:   length,
		stopChan: make(chan struct{}),
		logger:   logger.Named("shortcode_generator"),
	}
	if poolSize > 0 {
		g.codeChan = make(chan string, poolSize)
	}
	return g
}

// Start 启动后台预生成任务
func (g *Generator) Start() {
	if g.codeChan == nil {
		return
	}
	g.logger.Infof("启动短码预生成，池容量 %d", cap(g.codeChan))
	go g.fillChannel()
	go g.monitorAndRefill()
}

// Stop 停止后台任务，可重复调用
func (g *Generator) Stop() {
	g.stopOnce.Do(func() {
		close(g.stopChan)
	})
}

// Next 优先从预生成池取短码，池为空时现场生成
func (g *Generator) Next() (string, error) {
	select {
	case code := <-g.codeChan:
		return code, nil
	default:
		return g.generate()
	}
}

// Length 返回短码长度
func (g *Generator) Length() int {
	return g.length
}

func (g *Generator) generate() (string, error) {
	return gonanoid.Generate(Alphabet, g.length)
}

func (g *Generator) monitorAndRefill() {
	ticker := time.NewTicker(refillInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if len(g.codeChan) < cap(g.codeChan)/10+1 {
				g.fillChannel()
			}
		case <-g.stopChan:
			g.logger.Info("已停止短码预生成")
			return
		}
	}
}

func (g *Generator) fillChannel() {
	g.mu.Lock()
	if g.isFilling {
		g.mu.Unlock()
		return
	}
	g.isFilling = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.isFilling = false
		g.mu.Unlock()
	}()

	for {
		select {
		case <-g.stopChan:
			return
		default:
		}

		code, err := g.generate()
		if err != nil {
			g.logger.Errorf("生成短码时出错: %v", err)
			return
		}

		select {
		case g.codeChan <- code:
		default:
			// 池已满
			return
		}
	}
}

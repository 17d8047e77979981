package compositor

import (
	"context"
	"fmt"
	"image"
	"log"
	"math"
	"sync"

	"pose-reel-server/modules/common/model"
	"pose-reel-server/modules/common/utils"
)

// ProgressFunc - 렌더 진행률 콜백 (0~100)
type ProgressFunc func(pct int)

// Compositor - 생성된 이미지들을 켄 번즈 슬라이드쇼 비디오로 합성.
// 한 번에 하나의 렌더만 허용한다.
type Compositor struct {
	cfg    RenderConfig
	sink   FrameSink
	prober EncodingProber
	prefs  []Encoding

	mu        sync.Mutex
	state     State
	rendering bool
	stop      chan struct{}
}

// New - 합성기 생성
func New(cfg RenderConfig, sink FrameSink, prober EncodingProber) *Compositor {
	return &Compositor{
		cfg:    cfg,
		sink:   sink,
		prober: prober,
		prefs:  PreferredEncodings,
		state:  StateIdle,
	}
}

// State - 현재 상태 조회
func (c *Compositor) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Compositor) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Stop - 진행 중인 렌더 중단 요청. 렌더 중이 아니면 무시.
func (c *Compositor) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.rendering {
		return
	}
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}

// Render - 에셋 목록을 디코딩해 슬라이드쇼 비디오로 인코딩.
// 중단된 렌더는 (nil, nil)을 반환하고 상태는 Idle로 돌아간다.
func (c *Compositor) Render(ctx context.Context, assets []*model.GeneratedAsset, onProgress ProgressFunc) (*model.VideoAsset, error) {
	c.mu.Lock()
	if c.rendering {
		c.mu.Unlock()
		return nil, ErrAlreadyRendering
	}
	c.rendering = true
	c.stop = make(chan struct{})
	stop := c.stop
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.rendering = false
		c.mu.Unlock()
	}()

	if len(assets) == 0 {
		c.setState(StateFailed)
		return nil, ErrNoAssets
	}

	// 1단계: 에셋 디코딩
	c.setState(StateLoadingAssets)
	images := make([]image.Image, 0, len(assets))
	for i, asset := range assets {
		img, _, err := utils.DecodeImage(asset.Data)
		if err != nil {
			c.setState(StateFailed)
			return nil, fmt.Errorf("%w: asset %d: %v", ErrAssetDecode, i, err)
		}
		images = append(images, img)
	}

	// 2단계: 인코딩 협상 및 인코더 기동
	enc, err := Negotiate(c.prober, c.prefs)
	if err != nil {
		c.setState(StateFailed)
		return nil, err
	}
	if err := c.sink.Start(enc, c.cfg); err != nil {
		c.setState(StateFailed)
		return nil, fmt.Errorf("encoder start failed: %w", err)
	}

	c.setState(StateEncoding)
	log.Printf("🎞️ [Compositor] Rendering %d segments, %d frames total", len(images), c.cfg.TotalFrames())

	total := c.cfg.TotalFrames()
	segFrames := total / len(images)
	if segFrames < 1 {
		segFrames = 1
	}

	canvas := image.NewRGBA(image.Rect(0, 0, c.cfg.Width, c.cfg.Height))
	for frame := 0; frame < total; frame++ {
		select {
		case <-stop:
			c.sink.Abort()
			c.setState(StateIdle)
			log.Printf("🛑 [Compositor] Render stopped at frame %d", frame)
			return nil, nil
		case <-ctx.Done():
			c.sink.Abort()
			c.setState(StateIdle)
			return nil, nil
		default:
		}

		segIdx := frame / segFrames
		if segIdx >= len(images) {
			segIdx = len(images) - 1
		}
		local := frame - segIdx*segFrames

		// 플래시는 전체 시퀀스의 시작에서만
		rf := Transform(local, segFrames, c.cfg, frame < c.cfg.FlashFrames)
		paintFrame(canvas, images[segIdx], rf, c.cfg)

		if err := c.sink.WriteFrame(canvas); err != nil {
			c.sink.Abort()
			c.setState(StateFailed)
			return nil, fmt.Errorf("frame write failed: %w", err)
		}

		// 100은 Done 전이 이후에만 보고한다
		if onProgress != nil {
			onProgress(int(math.Round(float64(frame) / float64(total) * 100)))
		}
	}

	// 3단계: 마무리
	c.setState(StateFinalizing)
	video, err := c.sink.Finalize()
	if err != nil {
		c.setState(StateFailed)
		return nil, fmt.Errorf("finalize failed: %w", err)
	}

	c.setState(StateDone)
	if onProgress != nil {
		onProgress(100)
	}
	return video, nil
}

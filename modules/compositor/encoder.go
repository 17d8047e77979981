package compositor

import (
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pose-reel-server/modules/common/model"
)

// FFmpegProber - `ffmpeg -encoders` 출력으로 코덱 지원 여부 확인.
// 결과는 프로세스 수명 동안 캐시된다.
type FFmpegProber struct {
	Bin string

	once     sync.Once
	encoders string
	probeErr error
}

// NewFFmpegProber - 프로버 생성
func NewFFmpegProber(bin string) *FFmpegProber {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpegProber{Bin: bin}
}

// Supports - 코덱이 이 런타임의 ffmpeg에 들어있는지 확인
func (p *FFmpegProber) Supports(enc Encoding) bool {
	p.once.Do(func() {
		if _, err := exec.LookPath(p.Bin); err != nil {
			p.probeErr = err
			return
		}
		out, err := exec.Command(p.Bin, "-hide_banner", "-encoders").Output()
		if err != nil {
			p.probeErr = err
			return
		}
		p.encoders = string(out)
	})
	if p.probeErr != nil {
		return false
	}
	return strings.Contains(p.encoders, " "+enc.Codec+" ")
}

// FFmpegSink - rawvideo RGBA 프레임을 ffmpeg stdin으로 흘려보내는 싱크.
// 출력은 임시 파일로 받고 Finalize에서 읽어 단일 바이너리 에셋으로 만든다.
type FFmpegSink struct {
	Bin string

	enc     Encoding
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	outPath string
}

// NewFFmpegSink - 싱크 생성
func NewFFmpegSink(bin string) *FFmpegSink {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpegSink{Bin: bin}
}

// Start - 협상된 인코딩으로 ffmpeg 프로세스 기동
func (s *FFmpegSink) Start(enc Encoding, cfg RenderConfig) error {
	outPath := filepath.Join(os.TempDir(),
		fmt.Sprintf("reel_%d.%s", time.Now().UnixNano(), enc.Container))

	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-r", fmt.Sprintf("%d", cfg.FPS),
		"-i", "-",
		"-c:v", enc.Codec,
		"-pix_fmt", "yuv420p",
	}
	switch enc.Container {
	case "mp4":
		args = append(args, "-movflags", "+faststart")
	case "webm":
		args = append(args, "-b:v", "2M")
	}
	args = append(args, outPath)

	cmd := exec.Command(s.Bin, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open encoder stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start encoder: %w", err)
	}

	log.Printf("🎬 [Compositor] Encoder started: %s → %s (%s)", enc.Codec, enc.Container, outPath)

	s.enc = enc
	s.cmd = cmd
	s.stdin = stdin
	s.outPath = outPath
	return nil
}

// WriteFrame - 페인팅된 프레임 한 장 전달.
// image.NewRGBA 캔버스는 stride == width*4 이므로 Pix를 그대로 쓴다.
func (s *FFmpegSink) WriteFrame(frame *image.RGBA) error {
	if s.stdin == nil {
		return fmt.Errorf("sink not started")
	}
	if _, err := s.stdin.Write(frame.Pix); err != nil {
		return fmt.Errorf("failed to feed frame: %w", err)
	}
	return nil
}

// Finalize - 스트림 종료, 버퍼 플러시 후 결과 바이트 회수
func (s *FFmpegSink) Finalize() (*model.VideoAsset, error) {
	if s.cmd == nil {
		return nil, fmt.Errorf("sink not started")
	}
	s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		os.Remove(s.outPath)
		return nil, fmt.Errorf("encoder exited with error: %w", err)
	}

	data, err := os.ReadFile(s.outPath)
	os.Remove(s.outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read encoded output: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("encoder produced empty output")
	}

	log.Printf("✅ [Compositor] Encoded %d bytes (%s)", len(data), s.enc.MIMEType)
	return &model.VideoAsset{Data: data, MIMEType: s.enc.MIMEType}, nil
}

// Abort - 인코더 즉시 중단, 부분 출력 폐기
func (s *FFmpegSink) Abort() {
	if s.stdin != nil {
		s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
		s.cmd.Wait()
	}
	if s.outPath != "" {
		os.Remove(s.outPath)
	}
}

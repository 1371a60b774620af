// Command mtl-txsim drives a TX session against the simulated NIC driver,
// filling every Free slot with a synthetic test pattern and ticking the
// pacer at the configured frame rate. It exists to exercise the TX
// pipeline (Frame Ring -> Converter -> RFC 4175 -> Pacer -> NIC) end to
// end without real hardware or a PTP grandmaster.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/smpte2110/mtl-core/convert"
	"github.com/smpte2110/mtl-core/frame"
	"github.com/smpte2110/mtl-core/internal/xlog"
	"github.com/smpte2110/mtl-core/nic"
	"github.com/smpte2110/mtl-core/pacing"
	"github.com/smpte2110/mtl-core/pixfmt"
	"github.com/smpte2110/mtl-core/ptp"
	"github.com/smpte2110/mtl-core/rfc4175"
	"github.com/smpte2110/mtl-core/session"
)

var (
	width       int
	height      int
	fps         float64
	mtu         int
	mode        string
	ringCap     int
	queue       int
	payloadType int
	sessionID   string
	frames      int
	debugMode   bool
)

var rootCmd = &cobra.Command{
	Use:   "mtl-txsim",
	Short: "Exercise a ST 2110-20 TX session against the simulated NIC",
	Long: `mtl-txsim drives a TX session against the simulated NIC driver, filling
every Free slot with a synthetic test pattern and ticking the pacer at the
configured frame rate.

Examples:
  mtl-txsim --width 1920 --height 1080 --fps 59.94
  mtl-txsim --mode block --mtu 1460 --frames 300`,
	RunE: run,
}

func Execute() error { return rootCmd.Execute() }

func init() {
	rootCmd.Flags().IntVar(&width, "width", 1920, "frame width in pixels")
	rootCmd.Flags().IntVar(&height, "height", 1080, "frame height in pixels")
	rootCmd.Flags().Float64Var(&fps, "fps", 59.94, "frame rate")
	rootCmd.Flags().IntVar(&mtu, "mtu", 1460, "UDP payload budget per packet")
	rootCmd.Flags().StringVar(&mode, "mode", "slice", "packing mode: slice, block, general")
	rootCmd.Flags().IntVar(&ringCap, "ring", 4, "frame ring capacity")
	rootCmd.Flags().IntVar(&queue, "queue", 0, "simulated NIC TX queue index")
	rootCmd.Flags().IntVar(&payloadType, "payload-type", 112, "RTP payload type")
	rootCmd.Flags().StringVar(&sessionID, "id", "", "session id (random UUID if empty)")
	rootCmd.Flags().IntVar(&frames, "frames", 0, "number of frames to send (0 = run until interrupted)")
	rootCmd.Flags().BoolVarP(&debugMode, "debug", "d", false, "enable debug logging")
}

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mtl-txsim: %v\n", err)
		os.Exit(1)
	}
}

func parseMode(s string) (rfc4175.Mode, error) {
	switch s {
	case "slice", "singleline", "sl":
		return rfc4175.SingleLine, nil
	case "block", "bpm":
		return rfc4175.BlockPacking, nil
	case "general", "gpm":
		return rfc4175.GeneralPacking, nil
	}
	return 0, fmt.Errorf("unknown packing mode %q (want slice, block, or general)", s)
}

func run(cmd *cobra.Command, args []string) error {
	xlog.DebugMode = debugMode
	m, err := parseMode(mode)
	if err != nil {
		return err
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	geo := rfc4175.Geometry{Width: width, Height: height, Wire: pixfmt.RFC4175_422_10_PG2_BE}
	total, err := geo.TotalBytes()
	if err != nil {
		return fmt.Errorf("geometry: %w", err)
	}

	reg := convert.NewRegistry()
	nicDrv := nic.NewSimDriver()
	ptpSrc := ptp.NewSystemClock()

	cfg := session.TXConfig{
		RingCapacity: ringCap,
		Geo:          geo,
		Mode:         m,
		MTU:          mtu,
		PayloadType:  uint8(payloadType),
		SSRC:         sessionSSRC(sessionID),
		ConvertReq: convert.Request{
			Input: pixfmt.RFC4175_422_10_PG2_BE, Output: pixfmt.RFC4175_422_10_PG2_BE,
			Width: width, Height: height, FPS: fps,
		},
		Pacing: pacing.Config{
			FPS:     fps,
			Profile: pacing.ProfileFor(height, fps),
			Method:  pacing.TSC,
		},
		DropOnLate: true,
		Queue:      queue,
	}

	cb := session.Callbacks{
		FrameDone: func(fr *frame.Frame) {},
		FrameLate: func(seq uint64) {
			fmt.Fprintf(os.Stderr, "frame %d dropped: epoch already passed\n", seq)
		},
	}

	tx, err := session.NewTXSession(sessionID, cfg, reg, nicDrv, ptpSrc, cb)
	if err != nil {
		return fmt.Errorf("new TX session: %w", err)
	}
	if err := tx.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	fmt.Fprintf(os.Stderr, "mtl-txsim[%s]: %dx%d @ %.2ffps, mode=%s, mtu=%d, ring=%d\n", sessionID, width, height, fps, m, mtu, ringCap)
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to stop")

	ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
	defer ticker.Stop()

	sent := 0
	pattern := makePattern(total)
	for {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "stopping...")
			tx.Stop()
			printStats(tx.Stats())
			return nil
		case <-ticker.C:
			if frames > 0 && sent >= frames {
				tx.Stop()
				printStats(tx.Stats())
				return nil
			}
			slot, err := tx.GetFrame(0)
			if err != nil {
				continue
			}
			slot.Frame.Planes[0] = pattern
			slot.Frame.DataSize = total
			if err := tx.PutFrame(slot); err != nil {
				fmt.Fprintf(os.Stderr, "PutFrame: %v\n", err)
				continue
			}
			if err := tx.Tick(); err != nil {
				fmt.Fprintf(os.Stderr, "Tick: %v\n", err)
				continue
			}
			sent++
			if sent%int(fps) == 0 {
				fmt.Fprintf(os.Stderr, "sent %d frames\n", sent)
			}
		}
	}
}

// sessionSSRC derives a stable RTP SSRC from a session's UUID so repeated
// runs with the same --id produce the same synchronization source.
func sessionSSRC(id string) uint32 {
	u, err := uuid.Parse(id)
	if err != nil {
		return 0x4d544c00
	}
	b := u[:]
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// makePattern fills a deterministic ramp so a receiver can sanity-check
// frame integrity without a real camera source.
func makePattern(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i)
	}
	return buf
}

func printStats(st session.Stats) {
	fmt.Fprintf(os.Stderr, "buffers processed=%d bytes=%d dropped=%d epochs_missed=%d free=%d inuse=%d\n",
		st.BuffersProcessed, st.BytesProcessed, st.BuffersDropped, st.EpochsMissed, st.BuffersFree, st.BuffersInUse)
}

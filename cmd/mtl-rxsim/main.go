// Command mtl-rxsim drives an RX session against a simulated NIC queue,
// polling the queue for packets, feeding them into the depacketizer, and
// reporting completed frames. Pair it with mtl-txsim sharing the same
// in-process nic.SimDriver is not possible across separate processes, so
// this tool instead accepts raw RTP packets generated by its own internal
// loopback TX session - useful for soak-testing the RX pipeline and the
// timing-compliance parser in isolation.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/spf13/cobra"

	"github.com/smpte2110/mtl-core/convert"
	"github.com/smpte2110/mtl-core/internal/xlog"
	"github.com/smpte2110/mtl-core/nic"
	"github.com/smpte2110/mtl-core/pacing"
	"github.com/smpte2110/mtl-core/pixfmt"
	"github.com/smpte2110/mtl-core/ptp"
	"github.com/smpte2110/mtl-core/rfc4175"
	"github.com/smpte2110/mtl-core/session"
)

var (
	width        int
	height       int
	fps          float64
	mtu          int
	mode         string
	ringCap      int
	maxInFlight  int
	allowPartial bool
	enableTiming bool
	debugMode    bool
	framesWanted int
	sessionID    string
)

var rootCmd = &cobra.Command{
	Use:   "mtl-rxsim",
	Short: "Exercise a ST 2110-20 RX session fed by an internal loopback source",
	Long: `mtl-rxsim drives an RX session against a simulated NIC queue fed by an
internal loopback TX session, reporting completed frames and, optionally, the
minimum and maximum inter-packet spacing seen.

Examples:
  mtl-rxsim --width 1920 --height 1080 --fps 59.94
  mtl-rxsim --mode general --allow-incomplete --frames 300`,
	RunE: run,
}

func Execute() error { return rootCmd.Execute() }

func init() {
	rootCmd.Flags().IntVar(&width, "width", 1920, "frame width in pixels")
	rootCmd.Flags().IntVar(&height, "height", 1080, "frame height in pixels")
	rootCmd.Flags().Float64Var(&fps, "fps", 59.94, "frame rate (used by the internal loopback TX source)")
	rootCmd.Flags().IntVar(&mtu, "mtu", 1460, "UDP payload budget per packet")
	rootCmd.Flags().StringVar(&mode, "mode", "slice", "packing mode: slice, block, general")
	rootCmd.Flags().IntVar(&ringCap, "ring", 4, "frame ring capacity")
	rootCmd.Flags().IntVar(&maxInFlight, "max-in-flight", 4, "max partially-reassembled frames tracked at once")
	rootCmd.Flags().BoolVar(&allowPartial, "allow-incomplete", false, "deliver frames even if packets never fully arrive")
	rootCmd.Flags().BoolVar(&enableTiming, "timing-report", true, "track min/max inter-packet spacing")
	rootCmd.Flags().IntVar(&framesWanted, "frames", 0, "number of frames to receive (0 = run until interrupted)")
	rootCmd.Flags().StringVar(&sessionID, "id", "", "session id (random UUID if empty)")
	rootCmd.Flags().BoolVarP(&debugMode, "debug", "d", false, "enable debug logging")
}

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mtl-rxsim: %v\n", err)
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

// run wires a loopback TX session feeding a SimDriver queue, and an RX
// session draining that same queue, so the tool can be driven with no
// external network dependency while still exercising both halves of the
// wire codec and the ring's RX delivery path.
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
	convReq := convert.Request{
		Input: pixfmt.RFC4175_422_10_PG2_BE, Output: pixfmt.RFC4175_422_10_PG2_BE,
		Width: width, Height: height, FPS: fps,
	}

	txCfg := session.TXConfig{
		RingCapacity: ringCap, Geo: geo, Mode: m, MTU: mtu,
		PayloadType: 112, SSRC: 0x4d544c00, ConvertReq: convReq,
		Pacing: pacing.Config{FPS: fps, Profile: pacing.ProfileFor(height, fps), Method: pacing.TSC},
	}
	tx, err := session.NewTXSession("rxsim-loopback-tx", txCfg, reg, nicDrv, ptpSrc, session.Callbacks{})
	if err != nil {
		return fmt.Errorf("loopback TX session: %w", err)
	}
	if err := tx.Start(); err != nil {
		return err
	}

	rxCfg := session.RXConfig{
		RingCapacity: ringCap, Geo: geo, Mode: m, MTU: mtu,
		MaxInFlight: maxInFlight, ReceiveIncomplete: allowPartial,
		EnableTimingParser: enableTiming, ConvertReq: convReq,
	}
	rx, err := session.NewRXSession(sessionID, rxCfg, reg, session.Callbacks{})
	if err != nil {
		return fmt.Errorf("new RX session: %w", err)
	}
	if err := rx.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	fmt.Fprintf(os.Stderr, "mtl-rxsim[%s]: %dx%d @ %.2ffps, mode=%s, mtu=%d, ring=%d\n", sessionID, width, height, fps, m, mtu, ringCap)
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to stop")

	pattern := makePattern(total)
	ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
	defer ticker.Stop()

	received := 0
	for {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "stopping...")
			rx.Stop()
			tx.Stop()
			printStats(rx.Stats())
			printTiming(rx.TimingReportSnapshot())
			return nil
		case <-ticker.C:
			if framesWanted > 0 && received >= framesWanted {
				rx.Stop()
				tx.Stop()
				printStats(rx.Stats())
				printTiming(rx.TimingReportSnapshot())
				return nil
			}
			if err := feedOneFrame(tx, pattern, total); err != nil {
				fmt.Fprintf(os.Stderr, "feed: %v\n", err)
				continue
			}
			if err := drainToRX(nicDrv, reg, rx); err != nil {
				fmt.Fprintf(os.Stderr, "drain: %v\n", err)
				continue
			}
			slot, err := rx.GetFrame(0)
			if err != nil {
				continue
			}
			received++
			if err := rx.PutFrame(slot); err != nil {
				fmt.Fprintf(os.Stderr, "PutFrame: %v\n", err)
			}
			if received%int(fps) == 0 {
				fmt.Fprintf(os.Stderr, "received %d frames\n", received)
			}
		}
	}
}

func feedOneFrame(tx *session.TXSession, pattern []byte, total int) error {
	slot, err := tx.GetFrame(0)
	if err != nil {
		return err
	}
	slot.Frame.Planes[0] = pattern
	slot.Frame.DataSize = total
	if err := tx.PutFrame(slot); err != nil {
		return err
	}
	return tx.Tick()
}

func drainToRX(nicDrv *nic.SimDriver, reg *convert.Registry, rx *session.RXSession) error {
	raw, err := nicDrv.RxBurst(0, 4096)
	if err != nil {
		return err
	}
	for _, p := range raw {
		var pkt rtp.Packet
		if err := pkt.Unmarshal(p.Data); err != nil {
			return err
		}
		if err := rx.IngestPacket(reg, &pkt, 0, uint64(time.Now().UnixNano())); err != nil {
			return err
		}
	}
	return nil
}

func makePattern(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i)
	}
	return buf
}

func printStats(st session.Stats) {
	fmt.Fprintf(os.Stderr, "pkts received=%d redundant=%d out_of_order=%d free=%d inuse=%d\n",
		st.PktsReceived, st.PktsRedundant, st.PktsOutOfOrder, st.BuffersFree, st.BuffersInUse)
}

func printTiming(t *session.TimingReport) {
	if t == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "inter-packet min=%dns max=%dns\n", t.InterPacketMinNs, t.InterPacketMaxNs)
}

// Command sdspi is the interactive host-side driver for an SD/MMC card
// wired to a Linux SPI character device. It is a thin REPL: tokenizing
// typed commands, parsing numeric arguments, and dumping decoded fields to
// the terminal, while every bit-exact protocol decision lives in sdproto,
// transfer, and session.
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/daedaluz/sdspi/sdproto"
	"github.com/daedaluz/sdspi/session"
	"github.com/daedaluz/sdspi/transfer"
)

// errLog writes plain diagnostic lines (argument, transport, protocol, and
// file errors) straight to stderr, unadorned by levels or timestamps. The
// "Bad Block: A" lines are written to stderr by the transfer package itself.
var errLog = log.New(os.Stderr, "", 0)

func main() {
	device := pflag.StringP("device", "d", "", "SPI character device to open at startup")
	speed := pflag.Uint32P("speed", "s", 16_000_000, "initial SPI clock frequency, in Hz")
	blockLength := pflag.Uint16P("block-length", "b", session.DefaultBlockLength, "initial block length")
	verbose := pflag.BoolP("verbose", "v", true, "print decoded response fields")
	pflag.Parse()

	sess := session.New()
	sess.ClockFrequency = *speed
	sess.BlockLength = *blockLength
	sess.Verbose = *verbose

	if *device != "" {
		if err := sess.Open(*device); err != nil {
			errLog.Printf("%s", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		for range sigCh {
			sess.Interrupted.Store(true)
		}
	}()

	r := &repl{sess: sess, out: os.Stdout, scanner: bufio.NewScanner(os.Stdin)}
	r.run()
	sess.Close()
}

// repl drives the "sdmmc/spi> " prompt loop: read a line, tokenize it with
// strings.Fields, and dispatch on the verb table.
type repl struct {
	sess    *session.Session
	out     io.Writer
	scanner *bufio.Scanner
	done    bool
}

func (r *repl) run() {
	for !r.done {
		fmt.Fprint(r.out, "sdmmc/spi> ")
		if !r.scanner.Scan() {
			return
		}
		r.dispatch(strings.Fields(r.scanner.Text()))
	}
}

func (r *repl) dispatch(args []string) {
	if len(args) == 0 {
		return
	}
	verb := args[0]
	rest := args[1:]

	switch verb {
	case "?":
		r.displayCommands()
	case "verbose":
		r.sess.Verbose = true
	case "quiet":
		r.sess.Verbose = false
	case "bye":
		r.done = true
	case "session?":
		fmt.Fprint(r.out, r.sess.Report())
		fmt.Fprintln(r.out)
	case "clock":
		r.cmdClock(rest)
	case "open":
		r.cmdOpen(rest)
	case "close":
		if err := r.sess.Close(); err != nil {
			errLog.Printf("%s", err)
		}
	case "cmd0":
		r.cmd0()
	case "cmd1":
		r.cmd1()
	case "cmd6":
		r.cmd6(rest)
	case "cmd8":
		r.cmd8(rest)
	case "cmd9":
		r.cmd9()
	case "cmd10":
		r.cmd10()
	case "cmd16":
		r.cmd16(rest)
	case "cmd17":
		r.cmd17(rest)
	case "cmd58":
		r.cmd58()
	case "acmd41":
		r.acmd41(rest)
	case "fault":
		r.fault(rest)
	case "retry":
		r.retry(rest)
	case "push":
		r.push(rest)
	case "pull":
		r.pull(rest)
	default:
		errLog.Printf("Unrecognised command")
	}
}

func (r *repl) displayCommands() {
	entries := [][2]string{
		{"?", "Display commands"},
		{"session?", "Display session parameters"},
		{"verbose", "Be verbose (default)"},
		{"quiet", "Be quiet"},
		{"bye", "Leave sdmmc/spi"},
		{"clock FREQUENCY", "Set SPI clock frequency"},
		{"open FILENAME", "Open SPI device"},
		{"close", "Close SPI device"},
		{"cmd0", "Go to Idle State"},
		{"cmd1", "Send Operating Condition"},
		{"cmd6 FUNCTION", "Check/Switch Function"},
		{"cmd8 CONDITION", "Send Interface Condition"},
		{"cmd9", "Read CSD Register"},
		{"cmd10", "Read CID Register"},
		{"cmd16 LENGTH", "Set Block Length"},
		{"cmd17 ADDRESS", "Read Single Block"},
		{"cmd58", "Read Operating Condition"},
		{"acmd41 CONDITION", "Send Operating Condition"},
		{"fault tolerant", "Pad and skip block on error"},
		{"fault intolerant", "Abort on block error"},
		{"retry COUNT", "Set block retry count"},
		{"push FILE BLOCK", "Push blocks to card"},
		{"pull BLOCK COUNT FILE", "Pull blocks from card"},
	}
	for _, e := range entries {
		displayString(r.out, e[0], e[1])
	}
}

func (r *repl) cmdClock(args []string) {
	if len(args) != 1 {
		errLog.Printf("Invalid clock frequency")
		return
	}
	hz, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		errLog.Printf("Invalid clock frequency")
		return
	}
	if err := r.sess.SetClockFrequency(uint32(hz)); err != nil {
		errLog.Printf("%s", err)
	}
}

func (r *repl) cmdOpen(args []string) {
	if len(args) != 1 {
		errLog.Printf("Invalid device")
		return
	}
	if err := r.sess.Open(args[0]); err != nil {
		errLog.Printf("%s", err)
	}
}

func (r *repl) requireOpen() bool {
	if !r.sess.IsOpen() {
		errLog.Printf("Device not open")
		return false
	}
	return true
}

func (r *repl) cmd0() {
	if !r.requireOpen() {
		return
	}
	if err := sdproto.SendCommand(r.sess.Descriptor, 0, 0); err != nil {
		errLog.Printf("%s", err)
		return
	}
	r1, err := sdproto.ReadR1(r.sess.Descriptor)
	if err != nil {
		errLog.Printf("%s", err)
		return
	}
	if r.sess.Verbose {
		dumpR1(r.out, r1)
	}
}

func (r *repl) cmd1() {
	if !r.requireOpen() {
		return
	}
	for {
		if err := sdproto.SendCommand(r.sess.Descriptor, 1, 0); err != nil {
			errLog.Printf("%s", err)
			return
		}
		r1, err := sdproto.ReadR1(r.sess.Descriptor)
		if err != nil {
			errLog.Printf("%s", err)
			return
		}
		if r.sess.Verbose {
			dumpR1(r.out, r1)
		}
		if r1.Ready() {
			return
		}
		time.Sleep(time.Duration(r.sess.PollInterval) * time.Microsecond)
	}
}

func (r *repl) cmd6(args []string) {
	if !r.requireOpen() {
		return
	}
	arg, ok := parseUint32(args)
	if !ok {
		errLog.Printf("Invalid condition")
		return
	}
	if err := sdproto.SendCommand(r.sess.Descriptor, 6, arg); err != nil {
		errLog.Printf("%s", err)
		return
	}
	db, err := sdproto.ReadDataBlock(r.sess.Descriptor, 64)
	if err != nil {
		errLog.Printf("%s", err)
		return
	}
	if r.sess.Verbose {
		dumpBlock(r.out, db)
	}
}

func (r *repl) cmd8(args []string) {
	if !r.requireOpen() {
		return
	}
	arg, ok := parseUint32(args)
	if !ok {
		errLog.Printf("Invalid condition")
		return
	}
	if err := sdproto.SendCommand(r.sess.Descriptor, 8, arg); err != nil {
		errLog.Printf("%s", err)
		return
	}
	r7, err := sdproto.ReadR7(r.sess.Descriptor)
	if err != nil {
		errLog.Printf("%s", err)
		return
	}
	if r.sess.Verbose {
		dumpR7(r.out, r7)
	}
}

func (r *repl) cmd9() {
	if !r.requireOpen() {
		return
	}
	if err := sdproto.SendCommand(r.sess.Descriptor, 9, 0); err != nil {
		errLog.Printf("%s", err)
		return
	}
	db, err := sdproto.ReadDataBlock(r.sess.Descriptor, 16)
	if err != nil {
		errLog.Printf("%s", err)
		return
	}
	if db.Token != sdproto.TokenStart {
		if r.sess.Verbose {
			dumpBlock(r.out, db)
		}
		return
	}
	csd, err := sdproto.DecodeCSD(db.Payload)
	if err != nil {
		errLog.Printf("%s", err)
		return
	}
	if r.sess.Verbose {
		dumpCSD(r.out, csd)
	}
}

func (r *repl) cmd10() {
	if !r.requireOpen() {
		return
	}
	if err := sdproto.SendCommand(r.sess.Descriptor, 10, 0); err != nil {
		errLog.Printf("%s", err)
		return
	}
	db, err := sdproto.ReadDataBlock(r.sess.Descriptor, 16)
	if err != nil {
		errLog.Printf("%s", err)
		return
	}
	if db.Token != sdproto.TokenStart {
		if r.sess.Verbose {
			dumpBlock(r.out, db)
		}
		return
	}
	cid, err := sdproto.DecodeCID(db.Payload)
	if err != nil {
		errLog.Printf("%s", err)
		return
	}
	if r.sess.Verbose {
		dumpCID(r.out, cid)
	}
}

func (r *repl) cmd16(args []string) {
	if !r.requireOpen() {
		return
	}
	if len(args) != 1 {
		errLog.Printf("Invalid block length")
		return
	}
	length, err := strconv.ParseUint(args[0], 0, 16)
	if err != nil {
		errLog.Printf("Invalid block length")
		return
	}
	// CMD16's wire argument is 32 bits even though BlockLength itself
	// stays a uint16: widen only at the framing boundary.
	if err := sdproto.SendCommand(r.sess.Descriptor, 16, uint32(length)); err != nil {
		errLog.Printf("%s", err)
		return
	}
	r1, err := sdproto.ReadR1(r.sess.Descriptor)
	if err != nil {
		errLog.Printf("%s", err)
		return
	}
	if r1.Ready() {
		r.sess.BlockLength = uint16(length)
	}
	if r.sess.Verbose {
		dumpR1(r.out, r1)
	}
}

func (r *repl) cmd17(args []string) {
	if !r.requireOpen() {
		return
	}
	addr, ok := parseUint32(args)
	if !ok {
		errLog.Printf("Invalid address")
		return
	}
	if err := sdproto.SendCommand(r.sess.Descriptor, 17, addr); err != nil {
		errLog.Printf("%s", err)
		return
	}
	db, err := sdproto.ReadDataBlock(r.sess.Descriptor, int(r.sess.BlockLength))
	if err != nil {
		errLog.Printf("%s", err)
		return
	}
	if r.sess.Verbose {
		dumpBlock(r.out, db)
		if db.Token == sdproto.TokenStart {
			fmt.Fprint(r.out, hex.Dump(db.Payload))
		}
	}
}

func (r *repl) cmd58() {
	if !r.requireOpen() {
		return
	}
	if err := sdproto.SendCommand(r.sess.Descriptor, 58, 0); err != nil {
		errLog.Printf("%s", err)
		return
	}
	r3, err := sdproto.ReadR3(r.sess.Descriptor)
	if err != nil {
		errLog.Printf("%s", err)
		return
	}
	if r3.R1.Ready() {
		r.sess.HighCapacity = r3.CCS()
	}
	if r.sess.Verbose {
		dumpR3(r.out, r3)
	}
}

func (r *repl) acmd41(args []string) {
	if !r.requireOpen() {
		return
	}
	arg, ok := parseUint32(args)
	if !ok {
		errLog.Printf("Invalid condition")
		return
	}
	for {
		if err := sdproto.SendCommand(r.sess.Descriptor, 55, 0); err != nil {
			errLog.Printf("%s", err)
			return
		}
		prefix, err := sdproto.ReadR1(r.sess.Descriptor)
		if err != nil {
			errLog.Printf("%s", err)
			return
		}
		if r.sess.Verbose {
			dumpR1(r.out, prefix)
		}
		if err := sdproto.SendCommand(r.sess.Descriptor, 41, arg); err != nil {
			errLog.Printf("%s", err)
			return
		}
		r1, err := sdproto.ReadR1(r.sess.Descriptor)
		if err != nil {
			errLog.Printf("%s", err)
			return
		}
		if r.sess.Verbose {
			dumpR1(r.out, r1)
		}
		if r1.Ready() {
			return
		}
		time.Sleep(time.Duration(r.sess.PollInterval) * time.Microsecond)
	}
}

func (r *repl) fault(args []string) {
	if len(args) != 1 || (args[0] != "tolerant" && args[0] != "intolerant") {
		errLog.Printf("Unrecognised command")
		return
	}
	r.sess.FaultTolerant = args[0] == "tolerant"
}

func (r *repl) retry(args []string) {
	n, ok := parseUint32(args)
	if !ok {
		errLog.Printf("Invalid retry count")
		return
	}
	r.sess.RetryCount = n
}

func (r *repl) push(args []string) {
	if !r.requireOpen() {
		return
	}
	if len(args) != 2 {
		errLog.Printf("Invalid filename")
		return
	}
	block, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		errLog.Printf("Invalid address")
		return
	}
	report, err := transfer.Push(context.Background(), r.sess, args[0], uint32(block))
	if err != nil {
		errLog.Printf("%s", err)
		return
	}
	fmt.Fprintln(r.out, report.PushString())
}

func (r *repl) pull(args []string) {
	if !r.requireOpen() {
		return
	}
	if len(args) != 3 {
		errLog.Printf("Invalid address")
		return
	}
	block, err1 := strconv.ParseUint(args[0], 0, 32)
	count, err2 := strconv.ParseUint(args[1], 0, 64)
	if err1 != nil {
		errLog.Printf("Invalid address")
		return
	}
	if err2 != nil {
		errLog.Printf("Invalid count")
		return
	}
	report, err := transfer.Pull(context.Background(), r.sess, uint32(block), count, args[2])
	if err != nil {
		errLog.Printf("%s", err)
		return
	}
	fmt.Fprintln(r.out, report.PullString())
}

func parseUint32(args []string) (uint32, bool) {
	if len(args) != 1 {
		return 0, false
	}
	v, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

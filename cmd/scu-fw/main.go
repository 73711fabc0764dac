// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command scu-fw runs the SCU front-end's firmware-side control loop: the
// FG execution engine, the MIL FSM, DAQ ingest, and the MMU/ring/log-fifo
// administration, behind a tdaq run-control surface. It mmaps its own
// bulk RAM (DDR3/SRAM) and drives a bare-metal cooperative scheduler tick
// the way the LM32 soft-core's main loop would, fanning the per-tick work
// out with errgroup the way eda/device.go fans out its own per-frame work.
//
// Device and channel topology is fixed at build time (see channelTable
// below); SDB-style runtime discovery is out of scope.
package main // import "github.com/gsi-scu/fgctl/cmd/scu-fw"

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/gsi-scu/fgctl/bus"
	"github.com/gsi-scu/fgctl/daqingest"
	"github.com/gsi-scu/fgctl/fgchannel"
	"github.com/gsi-scu/fgctl/fgengine"
	"github.com/gsi-scu/fgctl/internal/mmap"
	"github.com/gsi-scu/fgctl/irq"
	"github.com/gsi-scu/fgctl/logfifo"
	"github.com/gsi-scu/fgctl/milfsm"
	"github.com/gsi-scu/fgctl/mmu"
	"github.com/gsi-scu/fgctl/ring"
)

const (
	bulkRAMBase = 0x0
	bulkRAMSpan = 1 << 20 // 1 MiB, enough for the fixed channel table below

	mmuAnchorOffset = 0

	addacRingWords = 4096
	milRingWords   = 4096
	logRingWords   = 2048

	refillThreshold = 4
	feedTimeoutNS    = 5_000_000 // 5ms watchdog between feeds

	scheduleTick = 1 * time.Millisecond

	filterFirmware uint32 = 1 << 0
)

func main() {
	cmd := flags.New()

	fw, err := newFirmware(cmd.Args)
	if err != nil {
		log.Panicf("error: %+v", err)
	}
	defer fw.Close()

	// cmd/scu-shell's command port address; an environment variable rather
	// than a flag.FlagSet entry since flags.New() above already owns the
	// top-level flag.CommandLine parse.
	cmdAddr := os.Getenv("SCU_FW_CMD_ADDR")
	if cmdAddr == "" {
		cmdAddr = ":8033"
	}
	port, err := newCommandPort(cmdAddr, fw)
	if err != nil {
		log.Panicf("error: %+v", err)
	}
	if port != nil {
		go port.Run()
		defer port.Close()
	}

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", fw.OnConfig)
	srv.CmdHandle("/init", fw.OnInit)
	srv.CmdHandle("/reset", fw.OnReset)
	srv.CmdHandle("/start", fw.OnStart)
	srv.CmdHandle("/stop", fw.OnStop)
	srv.CmdHandle("/quit", fw.OnQuit)
	srv.RunHandle(fw.schedule)

	if err := srv.Run(context.Background()); err != nil {
		log.Panicf("error: %+v", err)
	}
}

// channelConfig is one fixed (socket, tag, link) binding, resolved at
// OnInit time into a live fgengine.Engine.
type channelConfig struct {
	Socket fgchannel.Socket
	Tag    uint64
	LinkID int // -1 for ADDAC channels, which are not multiplexed over MIL
}

var channelTable = []channelConfig{
	{Socket: fgchannel.Socket{Slot: 1, Family: fgchannel.FamilyADDAC, Device: 0}, Tag: 0x1000, LinkID: -1},
	{Socket: fgchannel.Socket{Slot: 1, Family: fgchannel.FamilyADDAC, Device: 1}, Tag: 0x1001, LinkID: -1},
	{Socket: fgchannel.Socket{Slot: 2, Family: fgchannel.FamilyMIL, Device: 0}, Tag: 0x2000, LinkID: 0},
	{Socket: fgchannel.Socket{Slot: 2, Family: fgchannel.FamilyMIL, Device: 1}, Tag: 0x2001, LinkID: 0},
}

// segmentRing is the in-memory stand-in for the host-uploaded per-channel
// polynomial producer ring; the actual host upload transport is out of
// scope, so firmware.PushSegment is the injection point a future upload
// binary (or a test) calls instead.
type segmentRing struct {
	mu   sync.Mutex
	segs []fgchannel.Segment
}

func (r *segmentRing) PopSegment() (fgchannel.Segment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.segs) == 0 {
		return fgchannel.Segment{}, false
	}
	seg := r.segs[0]
	r.segs = r.segs[1:]
	return seg, true
}

func (r *segmentRing) Size() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint32(len(r.segs))
}

func (r *segmentRing) push(seg fgchannel.Segment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segs = append(r.segs, seg)
}

// engineBinding is everything the scheduler needs for one configured
// channel: the live engine, its segment source (to learn the last
// commanded set value) and, for MIL channels, the raw bus-level channel
// the link FSM drives directly.
type engineBinding struct {
	cfg     channelConfig
	engine  *fgengine.Engine
	segs    *segmentRing
	channel fgchannel.Channel
	lastSet int32
}

// engineTable implements milfsm.Engines, resolving a MIL link's flat
// channel index to its engine and last-commanded set value.
type engineTable struct {
	mu    sync.Mutex
	byIdx map[int]*engineBinding
}

func newEngineTable() *engineTable {
	return &engineTable{byIdx: make(map[int]*engineBinding)}
}

func (t *engineTable) bind(idx int, b *engineBinding) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byIdx[idx] = b
}

func (t *engineTable) Engine(channel int) (*fgengine.Engine, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.byIdx[channel]
	if !ok {
		return nil, false
	}
	return b.engine, true
}

// Channel returns the raw bus-level channel bound to idx, the handle
// milStep uses to issue status/data reads the link FSM's Actions demand
// (the engine itself keeps its channel private).
func (t *engineTable) Channel(idx int) (fgchannel.Channel, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.byIdx[idx]
	if !ok {
		return nil, false
	}
	return b.channel, true
}

func (t *engineTable) LastSetValue(channel int) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.byIdx[channel]
	if !ok {
		return 0
	}
	return b.lastSet
}

// pushSegment appends seg to idx's producer ring and records its CoeffC as
// the channel's current set value.
func (t *engineTable) pushSegment(idx int, seg fgchannel.Segment) bool {
	t.mu.Lock()
	b, ok := t.byIdx[idx]
	if ok {
		b.lastSet = seg.CoeffC
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	b.segs.push(seg)
	return true
}

// deviceRegistry implements daqingest.DeviceRegistry over the fixed
// channel table's slots.
type deviceRegistry struct {
	mu    sync.Mutex
	slots map[uint8]bool
}

func (r *deviceRegistry) IsRegistered(slot uint8) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[slot]
}

func (r *deviceRegistry) register(slot uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slots == nil {
		r.slots = make(map[uint8]bool)
	}
	r.slots[slot] = true
}

// pendingLog is one record deferred until the tick's dedicated flush
// stage, so concurrent scheduler stages never call logfifo.Producer.Logf
// from more than one goroutine at a time: CriticalSection.Enter/Exit only
// hold their lock momentarily to update the nesting counter, not across
// the whole section, so they do not themselves serialize the ring writes
// a concurrent Logf call would race on.
type pendingLog struct {
	filter uint32
	format uint32
	args   []uint32
}

// linkIO buffers one MIL link's in-flight task-request results, handed
// back to milfsm.Link.Step on the following tick to model the one-tick
// latency of a real asynchronous task-slot transaction.
type linkIO struct {
	status []milfsm.ChannelStatus
	reads  []milfsm.Sample
}

type firmware struct {
	mu sync.Mutex

	memFile *os.File
	bulk    *mmap.Handle
	acc     *bus.Accessor

	dir *mmu.Directory

	addacRing *ring.Admin
	milRing   *ring.Admin
	logRing   *ring.Admin

	crit   *irq.CriticalSection
	logger *logfifo.Producer

	saftQ *irq.BoundedQueue[irq.SaftCommand]

	registry *deviceRegistry
	ingest   *daqingest.Ingest
	rawQ     *irq.BoundedQueue[[]byte]

	engines *engineTable
	links   map[int]*milfsm.Link
	linkIO  map[int]*linkIO

	running bool
	now     func() uint64
}

func newFirmware(args []string) (*firmware, error) {
	path := "/dev/mem"
	if len(args) > 0 && args[0] != "" {
		path = args[0]
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("scu-fw: could not open %q: %w", path, err)
	}

	data, err := unix.Mmap(
		int(f.Fd()), bulkRAMBase, bulkRAMSpan,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED,
	)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("scu-fw: could not mmap bulk ram: %w", err)
	}

	bulk := mmap.HandleFrom(data)
	acc := bus.NewAccessor(bulk, bus.WithBurstThreshold(4))

	fw := &firmware{
		memFile:  f,
		bulk:     bulk,
		acc:      acc,
		dir:      mmu.New(acc, mmuAnchorOffset, bulkRAMSpan, true),
		crit:     irq.NewNullCriticalSection(),
		saftQ:    irq.NewBoundedQueue[irq.SaftCommand](64),
		registry: &deviceRegistry{},
		rawQ:     irq.NewBoundedQueue[[]byte](64),
		engines:  newEngineTable(),
		links:    make(map[int]*milfsm.Link),
		linkIO:   make(map[int]*linkIO),
		now:      func() uint64 { return uint64(time.Now().UnixNano()) },
	}
	return fw, nil
}

func (fw *firmware) Close() error {
	if fw.bulk != nil {
		fw.bulk.Close()
	}
	return fw.memFile.Close()
}

// PushRawBlock enqueues one raw DAQ block as delivered by the hardware
// fifo (payload + trailing descriptor), for ingestStep to validate and
// publish on the next tick. The actual DMA/fifo-IRQ delivery path is out
// of scope; this is the injection point an external driver or test would
// call instead.
func (fw *firmware) PushRawBlock(raw []byte) error {
	return fw.rawQ.PushOrAlarm(raw)
}

// PushSaftCommand enqueues one host-originated command, the injection
// point both commandPort (cmd/scu-shell's TCP command surface) and tests
// use.
func (fw *firmware) PushSaftCommand(cmd irq.SaftCommand) error {
	return fw.saftQ.PushOrAlarm(cmd)
}

// PushSegment appends seg to channel idx's producer ring, standing in for
// the host segment-upload transport (also out of scope).
func (fw *firmware) PushSegment(idx int, seg fgchannel.Segment) error {
	if !fw.engines.pushSegment(idx, seg) {
		return fmt.Errorf("scu-fw: no channel bound to index %d", idx)
	}
	return nil
}

func (fw *firmware) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	if err := fw.dir.Init(); err != nil {
		return fmt.Errorf("scu-fw: could not init mmu directory: %w", err)
	}

	// Every ring's MMU region reserves ring.HeaderSize bytes ahead of its
	// payload for the {start, end, was_read} admin cell published each
	// tick (see publishRingHeaders), so the host can mirror the ring
	// without a second, RPC-style channel back into this process.
	addacStart, _, _, err := fw.dir.Allocate(mmu.TagADDACDaq, ring.HeaderSize+addacRingWords*8, true)
	if err != nil {
		return fmt.Errorf("scu-fw: could not allocate addac daq ring: %w", err)
	}
	milStart, _, _, err := fw.dir.Allocate(mmu.TagMILDaq, ring.HeaderSize+milRingWords*8, true)
	if err != nil {
		return fmt.Errorf("scu-fw: could not allocate mil daq ring: %w", err)
	}
	logStart, _, _, err := fw.dir.Allocate(mmu.TagLM32Log, ring.HeaderSize+logRingWords*8, true)
	if err != nil {
		return fmt.Errorf("scu-fw: could not allocate log fifo: %w", err)
	}

	fw.addacRing = ring.NewAdmin(addacStart+ring.HeaderSize, addacRingWords)
	fw.milRing = ring.NewAdmin(milStart+ring.HeaderSize, milRingWords)
	fw.logRing = ring.NewAdmin(logStart+ring.HeaderSize, logRingWords)

	fw.logger = logfifo.NewProducer(fw.acc, fw.logRing, fw.crit, fw.now)
	fw.ingest = daqingest.NewIngest(fw.acc, fw.addacRing, fw.registry, daqingest.Hooks{
		OnErrorFraming: func(err error) { ctx.Msg.Errorf("daq ingest framing error: %+v", err) },
		OnErrorCRC:     func(desc daqingest.Descriptor) { ctx.Msg.Infof("daq ingest CRC mismatch: slot=%d chan=%d", desc.Slot, desc.Channel) },
		OnSequenceGap: func(slot, channel, prev, cur uint8) {
			ctx.Msg.Infof("daq ingest sequence gap: slot=%d chan=%d prev=%d cur=%d", slot, channel, prev, cur)
		},
	})

	return nil
}

func (fw *firmware) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")

	fw.links = make(map[int]*milfsm.Link)
	for _, cfg := range channelTable {
		if cfg.LinkID < 0 {
			continue
		}
		if _, ok := fw.links[cfg.LinkID]; !ok {
			fw.links[cfg.LinkID] = milfsm.NewLink(cfg.LinkID, fw.engines)
			fw.linkIO[cfg.LinkID] = &linkIO{}
		}
	}

	for idx, cfg := range channelTable {
		ch, err := fgchannel.NewChannel(fw.acc, cfg.Socket)
		if err != nil {
			return fmt.Errorf("scu-fw: could not bind channel %s: %w", cfg.Socket, err)
		}
		segs := &segmentRing{}
		eng := fgengine.NewEngine(ch, segs, refillThreshold, feedTimeoutNS)
		fw.engines.bind(idx, &engineBinding{cfg: cfg, engine: eng, segs: segs, channel: ch})
		fw.registry.register(uint8(cfg.Socket.Slot))

		if cfg.LinkID >= 0 {
			if _, err := fw.links[cfg.LinkID].AllocateSlot(idx); err != nil {
				return fmt.Errorf("scu-fw: could not allocate task slot for %s: %w", cfg.Socket, err)
			}
		}
	}

	return nil
}

func (fw *firmware) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	fw.running = false
	return nil
}

func (fw *firmware) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")

	for idx, cfg := range channelTable {
		b, ok := fw.engines.Engine(idx)
		if !ok {
			continue
		}
		if _, err := b.Enable(cfg.Tag); err != nil {
			return fmt.Errorf("scu-fw: could not enable %s: %w", cfg.Socket, err)
		}
	}

	fw.running = true
	return nil
}

func (fw *firmware) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")

	for idx := range channelTable {
		eng, ok := fw.engines.Engine(idx)
		if !ok {
			continue
		}
		if _, err := eng.Disable(); err != nil {
			ctx.Msg.Errorf("could not disable channel %d: %+v", idx, err)
		}
	}

	fw.running = false
	return nil
}

func (fw *firmware) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return nil
}

// schedule is the bare-metal cooperative scheduler's run loop, invoked by
// tdaq as the server's long-running task.
func (fw *firmware) schedule(ctx tdaq.Context) error {
	ticker := time.NewTicker(scheduleTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Ctx.Done():
			return nil
		case <-ticker.C:
			if !fw.running {
				continue
			}
			if err := fw.tick(ctx); err != nil {
				ctx.Msg.Errorf("tick: %+v", err)
			}
		}
	}
}

// tick fans the per-domain work out with errgroup, mirroring
// eda/device.go's use of errgroup to run a frame's independent stages
// concurrently, then flushes every stage's buffered log entries
// single-threaded once they have all joined.
func (fw *firmware) tick(ctx tdaq.Context) error {
	var (
		cmdLogs    []pendingLog
		ingestLogs []pendingLog
		milLogs    []pendingLog
	)

	grp, _ := errgroup.WithContext(ctx.Ctx)
	grp.Go(func() error {
		var err error
		cmdLogs, err = fw.commandStep(ctx)
		return err
	})
	grp.Go(func() error {
		var err error
		ingestLogs, err = fw.ingestStep(ctx)
		return err
	})
	grp.Go(func() error {
		var err error
		milLogs, err = fw.milStep(ctx)
		return err
	})

	if err := grp.Wait(); err != nil {
		return err
	}

	if err := fw.flushLogs(append(append(cmdLogs, ingestLogs...), milLogs...)); err != nil {
		return err
	}

	return fw.publishRingHeaders()
}

// publishRingHeaders writes each ring's {start, end, was_read} admin cell
// to its reserved header region, the one point where this process's
// in-memory ring.Admin state becomes visible to a host reading the same
// bulk RAM over Etherbone (hostram.Client.RefreshRing/AckRing on the other
// side). Run once per tick rather than after every individual push, since
// the host only ever observes the value at its next poll anyway.
func (fw *firmware) publishRingHeaders() error {
	for _, r := range []*ring.Admin{fw.addacRing, fw.milRing, fw.logRing} {
		if r == nil {
			continue
		}
		r.SynchronizeReadIndex()
		if err := ring.PublishHeader(fw.acc, r.Offset-ring.HeaderSize, r); err != nil {
			return fmt.Errorf("scu-fw: could not publish ring header: %w", err)
		}
	}
	return nil
}

func (fw *firmware) flushLogs(logs []pendingLog) error {
	for _, l := range logs {
		if err := fw.logger.Logf(l.filter, l.format, l.args...); err != nil {
			return fmt.Errorf("scu-fw: could not flush log record: %w", err)
		}
	}
	return nil
}

// commandStep drains up to one batch of host-originated SAFT commands,
// applying ENABLE/DISABLE/MIL_GAP_INTERVAL to the engine table and link
// set. SCAN is handled by OnConfig/OnInit and accepted here as a no-op so
// cmd/scu-shell's command set is uniform.
func (fw *firmware) commandStep(ctx tdaq.Context) ([]pendingLog, error) {
	var logs []pendingLog

	const maxPerTick = 16
	for i := 0; i < maxPerTick; i++ {
		cmd, ok := fw.saftQ.Pop()
		if !ok {
			break
		}

		idx := cmd.Channel
		switch cmd.Name {
		case "ENABLE":
			eng, ok := fw.engines.Engine(idx)
			if !ok {
				logs = append(logs, pendingLog{filter: filterFirmware, format: 0, args: []uint32{uint32(idx)}})
				continue
			}
			if _, err := eng.Enable(uint64(cmd.Arg)); err != nil {
				return logs, fmt.Errorf("scu-fw: ENABLE channel %d: %w", idx, err)
			}
		case "DISABLE":
			eng, ok := fw.engines.Engine(idx)
			if !ok {
				continue
			}
			if _, err := eng.Disable(); err != nil {
				return logs, fmt.Errorf("scu-fw: DISABLE channel %d: %w", idx, err)
			}
		case "MIL_GAP_INTERVAL":
			link, ok := fw.links[idx]
			if !ok {
				continue
			}
			link.SetGapInterval(uint64(cmd.Arg))
		case "SCAN":
			// topology is fixed at build time; nothing to rediscover.
		default:
			ctx.Msg.Infof("unknown SAFT command %q", cmd.Name)
		}
	}

	return logs, nil
}

// ingestStep drains raw DAQ blocks queued by PushRawBlock into the
// framing/CRC/reorder pipeline.
func (fw *firmware) ingestStep(ctx tdaq.Context) ([]pendingLog, error) {
	const maxPerTick = 32
	for i := 0; i < maxPerTick; i++ {
		raw, ok := fw.rawQ.Pop()
		if !ok {
			break
		}
		if err := fw.ingest.PushBlock(raw); err != nil {
			return nil, fmt.Errorf("scu-fw: daq ingest: %w", err)
		}
	}
	return nil, nil
}

// milStep advances every configured link's cooperative FSM by one round,
// executing the bus-level IO each Action demands and feeding the result
// back to the link on the following tick.
func (fw *firmware) milStep(ctx tdaq.Context) ([]pendingLog, error) {
	var logs []pendingLog

	for id, link := range fw.links {
		io := fw.linkIO[id]
		status, reads := io.status, io.reads

		actions, err := link.Step(fw.now(), status, reads)
		if err != nil {
			return logs, fmt.Errorf("scu-fw: mil link %d: %w", id, err)
		}
		io.status = io.status[:0]
		io.reads = io.reads[:0]

		for i, a := range actions {
			switch a.Kind {
			case milfsm.ActionIssueStatusRequest:
				ch, ok := fw.engines.Channel(a.Channel)
				if !ok {
					continue
				}
				st, err := ch.ReadStatus()
				if err != nil {
					return logs, fmt.Errorf("scu-fw: mil link %d: read status chan %d: %w", id, a.Channel, err)
				}
				io.status = append(io.status, milfsm.ChannelStatus{
					Channel: a.Channel, StateIRQ: st.StateIRQ, DataRequest: st.DataRequest,
				})
			case milfsm.ActionIssueDataRead:
				ch, ok := fw.engines.Channel(a.Channel)
				if !ok {
					continue
				}
				sample, err := ch.ReadSample()
				if err != nil {
					return logs, fmt.Errorf("scu-fw: mil link %d: read sample chan %d: %w", id, a.Channel, err)
				}
				io.reads = append(io.reads, milfsm.Sample{
					Channel: a.Channel, Timestamp: sample.Timestamp, ActValue: sample.ActValue,
				})
			case milfsm.ActionPushTuple:
				ch := -1
				if i < len(reads) {
					ch = reads[i].Channel
				}
				if err := fw.publishMilTuple(ch, a.Tuple); err != nil {
					return logs, fmt.Errorf("scu-fw: mil link %d: publish tuple: %w", id, err)
				}
			case milfsm.ActionLogError:
				logs = append(logs, pendingLog{filter: filterFirmware, format: 0, args: []uint32{uint32(a.Channel), uint32(a.Err)}})
			}
		}
	}

	return logs, nil
}

// publishMilTuple appends one paired MIL sample to the MIL-DAQ ring. ch
// of -1 (an unresolved channel, see milStep) is recorded as FgMacro 0.
func (fw *firmware) publishMilTuple(ch int, t milfsm.FeedbackTuple) error {
	fgMacro := uint32(0)
	if ch >= 0 {
		fgMacro = uint32(ch)
	}
	item := daqingest.MilDaqItem{Timestamp: t.Timestamp, ActValue: t.ActValue, SetValue: t.SetValue, FgMacro: fgMacro}
	buf := item.Pack()

	fw.mu.Lock()
	defer fw.mu.Unlock()

	words := uint32(len(buf) / 8)
	if fw.milRing.RemainingCapacity() < words {
		fw.milRing.AddToReadIndex(words)
	}
	addr := fw.milRing.Offset + fw.milRing.End*8
	if err := fw.acc.WriteBurst(addr, buf); err != nil {
		return err
	}
	fw.milRing.Push(words)
	return nil
}

// Package sim provides in-memory switch matrices and instruments for dry runs
// and tests. Devices can share a Journal so the relative order of calls across
// both banks can be inspected.
package sim

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"hipot/internal/channelmap"
	"hipot/internal/device"
	"hipot/internal/station"
)

// Entry is one recorded device call.
type Entry struct {
	Device string
	Op     string
	Arg    string
}

func (e Entry) String() string {
	if e.Arg == "" {
		return e.Device + " " + e.Op
	}
	return e.Device + " " + e.Op + " " + e.Arg
}

// Journal records calls from every device attached to it.
type Journal struct {
	mu      sync.Mutex
	entries []Entry
}

func (j *Journal) record(dev, op, arg string) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, Entry{Device: dev, Op: op, Arg: arg})
}

// Entries returns a copy of the recorded calls.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Entry(nil), j.entries...)
}

// Reset drops every recorded call.
func (j *Journal) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = nil
}

// Failures injects errors by operation name ("disable", "execute", ...).
type Failures struct {
	mu   sync.Mutex
	errs map[string]error
}

// Set makes op fail with err. A nil err clears the failure.
func (f *Failures) Set(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = make(map[string]error)
	}
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

func (f *Failures) check(name, op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[op]; ok {
		return station.Wrap(station.ErrDevice, name, op, "simulated failure", err)
	}
	return nil
}

// SwitchState is the set of closed channels per role.
type SwitchState struct {
	Continuity []int
	Return     []int
	Withstand  []int
}

// Energized reports whether any channel is closed.
func (s SwitchState) Energized() bool {
	return len(s.Continuity)+len(s.Return)+len(s.Withstand) > 0
}

// Switch is a simulated switch matrix.
type Switch struct {
	Failures

	name    string
	journal *Journal

	mu    sync.Mutex
	state SwitchState
}

// NewSwitch builds a switch that records into journal (which may be nil).
func NewSwitch(name string, journal *Journal) *Switch {
	return &Switch{name: name, journal: journal}
}

func (s *Switch) configure(ctx context.Context, op string, channels []int, set func(*SwitchState, []int)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.journal.record(s.name, op, formatChannels(channels))
	if err := s.check(s.name, op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set(&s.state, slices.Clone(channels))
	return nil
}

func (s *Switch) ConfigureContinuityChannels(ctx context.Context, channels []int) error {
	return s.configure(ctx, "continuity", channels, func(st *SwitchState, c []int) { st.Continuity = c })
}

func (s *Switch) ConfigureReturnChannels(ctx context.Context, channels []int) error {
	return s.configure(ctx, "return", channels, func(st *SwitchState, c []int) { st.Return = c })
}

func (s *Switch) ConfigureWithstandChannels(ctx context.Context, channels []int) error {
	return s.configure(ctx, "withstand", channels, func(st *SwitchState, c []int) { st.Withstand = c })
}

// DisableAllChannels ignores ctx cancellation so safety shutdowns always land.
func (s *Switch) DisableAllChannels(context.Context) error {
	s.journal.record(s.name, "disable", "")
	if err := s.check(s.name, "disable"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SwitchState{}
	return nil
}

// State returns the currently closed channels.
func (s *Switch) State() SwitchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SwitchState{
		Continuity: slices.Clone(s.state.Continuity),
		Return:     slices.Clone(s.state.Return),
		Withstand:  slices.Clone(s.state.Withstand),
	}
}

// Verdict decides the status column reported for a finished program.
// program is the running program name, state the linked switch channels.
type Verdict func(program string, params device.TestParameters, state SwitchState) string

// Instrument is a simulated test instrument.
type Instrument struct {
	Failures

	name    string
	journal *Journal

	mu         sync.Mutex
	linked     *Switch
	verdict    Verdict
	opcDelay   int
	programs   []string
	current    string
	params     device.TestParameters
	running    bool
	pending    int
	lastRecord string
}

// NewInstrument builds an instrument that passes every test and completes
// after two busy polls.
func NewInstrument(name string, journal *Journal) *Instrument {
	return &Instrument{name: name, journal: journal, opcDelay: 2}
}

// Link attaches the switch whose channel state is passed to the verdict.
func (i *Instrument) Link(sw *Switch) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.linked = sw
}

// SetVerdict replaces the verdict function.
func (i *Instrument) SetVerdict(v Verdict) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.verdict = v
}

// SetOPCDelay sets how many polls report busy after Execute.
func (i *Instrument) SetOPCDelay(polls int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.opcDelay = polls
}

// Programs returns the stored program names.
func (i *Instrument) Programs() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return slices.Clone(i.programs)
}

func (i *Instrument) enter(ctx context.Context, op, arg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.journal.record(i.name, op, arg)
	return i.check(i.name, op)
}

func (i *Instrument) CreateOrReplaceProgram(ctx context.Context, name string) error {
	if err := i.enter(ctx, "create", name); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if idx := slices.Index(i.programs, name); idx >= 0 {
		i.journal.record(i.name, "delete", name)
		i.programs = slices.Delete(i.programs, idx, idx+1)
	}
	i.programs = append(i.programs, name)
	i.current = name
	i.params = device.TestParameters{}
	return nil
}

func (i *Instrument) SetParameters(ctx context.Context, params device.TestParameters) error {
	if err := i.enter(ctx, "parameters", fmt.Sprintf("%gV", params.Voltage)); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.params = params
	return nil
}

func (i *Instrument) Execute(ctx context.Context) error {
	if err := i.enter(ctx, "execute", ""); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.running = true
	i.pending = i.opcDelay
	i.lastRecord = ""
	return nil
}

// Abort ignores ctx cancellation so the instrument is always stopped.
func (i *Instrument) Abort(context.Context) error {
	i.journal.record(i.name, "abort", "")
	if err := i.check(i.name, "abort"); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.running = false
	i.pending = 0
	return nil
}

func (i *Instrument) ReadRawStatus(ctx context.Context) (string, error) {
	if err := i.enter(ctx, "status", ""); err != nil {
		return "", err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.running && i.pending > 0 {
		return "01,ACW,Dwell,1.240kV,0.000mA", nil
	}
	if i.lastRecord == "" {
		i.lastRecord = i.record()
	}
	return i.lastRecord, nil
}

func (i *Instrument) record() string {
	verdict := "PASS"
	if i.verdict != nil {
		var state SwitchState
		if i.linked != nil {
			state = i.linked.State()
		}
		verdict = i.verdict(i.current, i.params, state)
	}
	return fmt.Sprintf("01,ACW,%s,%.3fkV,0.050mA", verdict, i.params.Voltage/1000)
}

func (i *Instrument) PollOperationComplete(ctx context.Context) (bool, error) {
	if err := i.enter(ctx, "opc", ""); err != nil {
		return false, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.running && i.pending > 0 {
		i.pending--
		return false, nil
	}
	return true, nil
}

// NewBanks builds two simulated banks sharing journal. Each instrument is
// linked to its bank's switch.
func NewBanks(journal *Journal) (device.Banks, [2]*Switch, [2]*Instrument) {
	var switches [2]*Switch
	var instruments [2]*Instrument
	for idx := range switches {
		n := idx + 1
		switches[idx] = NewSwitch(fmt.Sprintf("switch%d", n), journal)
		instruments[idx] = NewInstrument(fmt.Sprintf("instrument%d", n), journal)
		instruments[idx].Link(switches[idx])
	}
	banks := device.Banks{
		One: device.Bank{ID: channelmap.Bank1, Switch: switches[0], Instrument: instruments[0]},
		Two: device.Bank{ID: channelmap.Bank2, Switch: switches[1], Instrument: instruments[1]},
	}
	return banks, switches, instruments
}

func formatChannels(channels []int) string {
	parts := make([]string, len(channels))
	for idx, ch := range channels {
		parts[idx] = fmt.Sprint(ch)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

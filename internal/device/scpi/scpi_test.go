package scpi

import (
	"context"
	"errors"
	"strings"
	"testing"

	"hipot/internal/device"
	"hipot/internal/station"
)

type scriptedTransport struct {
	written   []string
	responses map[string]string
	err       error
	closed    bool
}

func (s *scriptedTransport) Write(_ context.Context, line string) error {
	if s.err != nil {
		return s.err
	}
	s.written = append(s.written, line)
	return nil
}

func (s *scriptedTransport) Query(_ context.Context, line string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.written = append(s.written, line)
	return s.responses[line], nil
}

func (s *scriptedTransport) Close() error {
	s.closed = true
	return nil
}

func TestSwitchCommands(t *testing.T) {
	tr := &scriptedTransport{}
	sw := NewSwitch("switch1", tr)
	ctx := context.Background()

	_ = sw.DisableAllChannels(ctx)
	_ = sw.ConfigureContinuityChannels(ctx, []int{8})
	_ = sw.ConfigureReturnChannels(ctx, []int{6})
	_ = sw.ConfigureWithstandChannels(ctx, []int{5})

	want := []string{"ROUT:OPEN:ALL", "ROUT:CONT (@8)", "ROUT:RET (@6)", "ROUT:HV (@5)"}
	if strings.Join(tr.written, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected commands %v", tr.written)
	}
}

func TestCreateOrReplaceProgramDeletesExisting(t *testing.T) {
	tr := &scriptedTransport{responses: map[string]string{"FILE:CAT?": `"Setup","IviTest"`}}
	inst := NewInstrument("instrument1", tr)

	if err := inst.CreateOrReplaceProgram(context.Background(), "IviTest"); err != nil {
		t.Fatalf("CreateOrReplaceProgram: %v", err)
	}
	want := []string{"FILE:CAT?", "FILE:DEL 2", "FILE:NEW 2,IviTest"}
	if strings.Join(tr.written, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected commands %v", tr.written)
	}
}

func TestCreateOrReplaceProgramAppendsWhenMissing(t *testing.T) {
	tr := &scriptedTransport{responses: map[string]string{"FILE:CAT?": ""}}
	inst := NewInstrument("instrument1", tr)

	if err := inst.CreateOrReplaceProgram(context.Background(), "IviTest"); err != nil {
		t.Fatalf("CreateOrReplaceProgram: %v", err)
	}
	if last := tr.written[len(tr.written)-1]; last != "FILE:NEW 1,IviTest" {
		t.Fatalf("unexpected create command %q", last)
	}
}

func TestSetParametersOrder(t *testing.T) {
	tr := &scriptedTransport{}
	inst := NewInstrument("instrument1", tr)
	params := device.TestParameters{
		Voltage: 1240, CurrentHighLimit: 20, RampUpTime: 0.1, RampDownTime: 2, ArcSenseLevel: 5,
		ArcDetection: true, Frequency: 60, ContinuityTest: true, ResistanceHighLimit: 1.5, ResistanceOffset: 0.5,
	}
	if err := inst.SetParameters(context.Background(), params); err != nil {
		t.Fatalf("SetParameters: %v", err)
	}
	want := "STEP:ADD ACW,1240,20,0,0.1,0,2,5,1,60,1,1.5,0,0.5"
	if tr.written[0] != want || tr.written[1] != "FILE:SAVE" {
		t.Fatalf("unexpected commands %v", tr.written)
	}
}

func TestPollOperationComplete(t *testing.T) {
	tr := &scriptedTransport{responses: map[string]string{"*OPC?": "1\r"}}
	inst := NewInstrument("instrument1", tr)
	done, err := inst.PollOperationComplete(context.Background())
	if err != nil || !done {
		t.Fatalf("expected complete, got %v %v", done, err)
	}
	tr.responses["*OPC?"] = "0"
	if done, _ := inst.PollOperationComplete(context.Background()); done {
		t.Fatal("expected busy")
	}
}

func TestTransportErrorsAreDeviceErrors(t *testing.T) {
	tr := &scriptedTransport{err: errors.New("read timeout")}
	inst := NewInstrument("instrument1", tr)
	if _, err := inst.ReadRawStatus(context.Background()); !errors.Is(err, station.ErrDevice) {
		t.Fatalf("expected device error, got %v", err)
	}
	if err := inst.Close(); err != nil || !tr.closed {
		t.Fatalf("expected transport closed, err %v", err)
	}
}

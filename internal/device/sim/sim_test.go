package sim

import (
	"context"
	"errors"
	"strings"
	"testing"

	"hipot/internal/device"
	"hipot/internal/station"
)

func TestInstrumentCompletesAfterDelay(t *testing.T) {
	ctx := context.Background()
	inst := NewInstrument("instrument1", nil)
	inst.SetOPCDelay(1)
	if err := inst.Execute(ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if done, _ := inst.PollOperationComplete(ctx); done {
		t.Fatal("expected first poll busy")
	}
	if done, _ := inst.PollOperationComplete(ctx); !done {
		t.Fatal("expected second poll complete")
	}
	record, err := inst.ReadRawStatus(ctx)
	if err != nil {
		t.Fatalf("ReadRawStatus: %v", err)
	}
	if fields := strings.Split(record, ","); fields[2] != "PASS" {
		t.Fatalf("unexpected record %q", record)
	}
}

func TestCreateOrReplaceProgramIsIdempotent(t *testing.T) {
	ctx := context.Background()
	journal := &Journal{}
	inst := NewInstrument("instrument1", journal)
	for range 3 {
		if err := inst.CreateOrReplaceProgram(ctx, "IviTest"); err != nil {
			t.Fatalf("CreateOrReplaceProgram: %v", err)
		}
	}
	if got := inst.Programs(); len(got) != 1 || got[0] != "IviTest" {
		t.Fatalf("expected one program, got %v", got)
	}
	deletes := 0
	for _, e := range journal.Entries() {
		if e.Op == "delete" {
			deletes++
		}
	}
	if deletes != 2 {
		t.Fatalf("expected 2 deletes, got %d", deletes)
	}
}

func TestVerdictSeesLinkedSwitch(t *testing.T) {
	ctx := context.Background()
	banks, switches, instruments := NewBanks(nil)
	instruments[1].SetOPCDelay(0)
	instruments[1].SetVerdict(func(_ string, params device.TestParameters, st SwitchState) string {
		if params.ContinuityTest && len(st.Continuity) == 1 {
			return "FAIL"
		}
		return "PASS"
	})
	if err := switches[1].ConfigureContinuityChannels(ctx, []int{8}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	bank, _ := banks.Get(2)
	if err := bank.Instrument.SetParameters(ctx, device.TestParameters{Voltage: 1240, ContinuityTest: true}); err != nil {
		t.Fatalf("SetParameters: %v", err)
	}
	_ = bank.Instrument.Execute(ctx)
	record, _ := bank.Instrument.ReadRawStatus(ctx)
	if !strings.Contains(record, ",FAIL,") {
		t.Fatalf("expected FAIL record, got %q", record)
	}
	if err := banks.DisableAll(ctx); err != nil {
		t.Fatalf("DisableAll: %v", err)
	}
	if switches[1].State().Energized() {
		t.Fatal("expected switch de-energized")
	}
}

func TestFailuresAreTaggedDeviceErrors(t *testing.T) {
	sw := NewSwitch("switch1", nil)
	sw.Set("disable", errors.New("timeout"))
	err := sw.DisableAllChannels(context.Background())
	if !errors.Is(err, station.ErrDevice) {
		t.Fatalf("expected device error, got %v", err)
	}
	sw.Set("disable", nil)
	if err := sw.DisableAllChannels(context.Background()); err != nil {
		t.Fatalf("expected cleared failure, got %v", err)
	}
}

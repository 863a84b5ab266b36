package project

import "testing"

func testCharter(t *testing.T) *Charter {
	t.Helper()
	charter, err := Parse(sampleCharter)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return charter
}

func TestCheckAligned(t *testing.T) {
	charter := testCharter(t)

	res := charter.Check("Improve card payment processing retries")
	if res.Verdict != VerdictAligned {
		t.Errorf("verdict = %q, want aligned (got %+v)", res.Verdict, res)
	}
	if res.Score <= 0 {
		t.Errorf("score = %v, want > 0", res.Score)
	}
	if len(res.MatchedGoals) == 0 {
		t.Error("matched goals should name the overlapping charter entries")
	}
}

func TestCheckMisaligned(t *testing.T) {
	charter := testCharter(t)

	res := charter.Check("Add cryptocurrency support to checkout")
	if res.Verdict != VerdictMisaligned {
		t.Errorf("verdict = %q, want misaligned", res.Verdict)
	}
	if len(res.ViolatedNonGoals) != 1 {
		t.Errorf("violated non-goals = %v, want the cryptocurrency entry", res.ViolatedNonGoals)
	}
}

func TestCheckNonGoalWinsOverGoalOverlap(t *testing.T) {
	charter := testCharter(t)

	// Mentions both a goal (payment) and a non-goal (cryptocurrency support).
	res := charter.Check("Accept cryptocurrency payment support")
	if res.Verdict != VerdictMisaligned {
		t.Errorf("verdict = %q, non-goal overlap must win", res.Verdict)
	}
}

func TestCheckNeedsReview(t *testing.T) {
	charter := testCharter(t)

	res := charter.Check("Refactor logging middleware")
	if res.Verdict != VerdictReview {
		t.Errorf("verdict = %q, want review for unrelated work", res.Verdict)
	}
}

func TestCheckNoCharter(t *testing.T) {
	var nilCharter *Charter
	if res := nilCharter.Check("anything"); res.Verdict != VerdictAligned {
		t.Errorf("nil charter verdict = %q, want aligned", res.Verdict)
	}

	empty := &Charter{}
	if res := empty.Check("anything"); res.Verdict != VerdictAligned {
		t.Errorf("empty charter verdict = %q, want aligned", res.Verdict)
	}
}

func TestSingleWordNonGoalNeedsExactHit(t *testing.T) {
	charter := &Charter{
		Goals:    []string{"Ship the web dashboard"},
		NonGoals: []string{"Mobile"},
	}

	if res := charter.Check("Polish the mobile layout"); res.Verdict != VerdictMisaligned {
		t.Errorf("verdict = %q, single-keyword non-goal should trigger on its word", res.Verdict)
	}
	if res := charter.Check("Ship the web dashboard filters"); res.Verdict != VerdictAligned {
		t.Errorf("verdict = %q, unrelated text should not trip the non-goal", res.Verdict)
	}
}

func TestCheckHistory(t *testing.T) {
	charter := testCharter(t)

	report := charter.CheckHistory([]string{
		"Speed up settlement reporting queries",
		"Add cryptocurrency support",
		"Bump CI timeout",
	})
	if report.Total != 3 {
		t.Errorf("total = %d, want 3", report.Total)
	}
	if report.Aligned != 1 || report.Misaligned != 1 || report.Review != 1 {
		t.Errorf("counts = %+v, want one of each", report)
	}
	if !report.Drifting() {
		t.Error("report with a misaligned commit should read as drifting")
	}
}

func TestDriftingThresholds(t *testing.T) {
	r := &DriftReport{}
	if r.Drifting() {
		t.Error("empty report should not drift")
	}

	r = &DriftReport{Total: 4, Aligned: 3, Review: 1}
	if r.Drifting() {
		t.Error("mostly aligned history should not drift")
	}

	r = &DriftReport{Total: 4, Aligned: 1, Review: 3}
	if !r.Drifting() {
		t.Error("mostly unmatched history should drift")
	}
}

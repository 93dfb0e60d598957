package job

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/notification"
)

type memRepo struct {
	Repository

	jobs         map[string]Job
	team         map[string]TeamMember
	delivered    int
	activeSubs   int
	conflicts    []ScheduleConflict
	history      []History
	healthScores map[string]int
	owners       map[string]string // referenced row id to its tenant
}

func newMemRepo(jobs ...Job) *memRepo {
	r := &memRepo{jobs: make(map[string]Job), team: make(map[string]TeamMember), healthScores: make(map[string]int),
		owners: map[string]string{"c1": "t1", "a1": "t1", "p1": "t1", "c2": "t2", "a2": "t2", "pB": "t2"}}
	for _, j := range jobs {
		r.jobs[j.ID] = j
	}
	return r
}

func (r *memRepo) GetJob(_ context.Context, tenantID, id string) (Job, error) {
	if j, ok := r.jobs[id]; ok && j.TenantID == tenantID {
		return j, nil
	}
	return Job{}, ErrNotFound
}

func (r *memRepo) CheckRefs(_ context.Context, tenantID string, refs ...core.TenantRef) error {
	for _, ref := range refs {
		if r.owners[ref.ID] != tenantID {
			return core.InvalidRef(ref.Field)
		}
	}
	return nil
}

func (r *memRepo) CreateJob(_ context.Context, j Job) (Job, error) {
	j.ID = "j" + j.Title
	j.Code = "001"
	r.jobs[j.ID] = j
	return j, nil
}

func (r *memRepo) UpdateJob(_ context.Context, j Job) (Job, error) {
	r.jobs[j.ID] = j
	return j, nil
}

func (r *memRepo) DeleteJob(_ context.Context, _, id string, _ time.Time) error {
	delete(r.jobs, id)
	return nil
}

func (r *memRepo) SetHealthScore(_ context.Context, _, id string, score int) error {
	r.healthScores[id] = score
	return nil
}

func (r *memRepo) CountActiveSubJobs(context.Context, string, string) (int, error) {
	return r.activeSubs, nil
}

func (r *memRepo) CountTeam(_ context.Context, _, jobID string) (int, error) {
	n := 0
	for _, m := range r.team {
		if m.JobID == jobID {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) AddTeamMember(_ context.Context, m TeamMember) (TeamMember, error) {
	for _, o := range r.team {
		if o.JobID == m.JobID && o.PersonID == m.PersonID && o.Role == m.Role {
			return TeamMember{}, core.Conflict("unique violation")
		}
	}
	m.ID = "m" + m.PersonID + m.Role
	name := "Ana"
	m.PersonName = &name
	r.team[m.ID] = m
	return m, nil
}

func (r *memRepo) ScheduleConflicts(context.Context, string, string, string) ([]ScheduleConflict, error) {
	return r.conflicts, nil
}

func (r *memRepo) CountDeliverablesByStatus(context.Context, string, string, string) (int, error) {
	return r.delivered, nil
}

func (r *memRepo) InsertHistory(_ context.Context, h History) error {
	r.history = append(r.history, h)
	return nil
}

type recordingNotifier struct {
	team  []notification.NewNotification
	users []string
}

func (n *recordingNotifier) NotifyJobTeam(_ context.Context, _, _ string, nn notification.NewNotification) int {
	n.team = append(n.team, nn)
	return 1
}

func (n *recordingNotifier) NotifyUser(_ context.Context, _, userID string, _ notification.NewNotification) {
	n.users = append(n.users, userID)
}

type recordingEnqueuer struct {
	keys     []string
	payloads []core.JSONMap
}

func (e *recordingEnqueuer) EnqueueWorkflow(_ context.Context, _, _ string, payload core.JSONMap, key string) (string, error) {
	e.keys = append(e.keys, key)
	e.payloads = append(e.payloads, payload)
	return "ev1", nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type fixture struct {
	repo     *memRepo
	notifier *recordingNotifier
	events   *recordingEnqueuer
	svc      *Service
	actor    core.Actor
}

func newFixture(jobs ...Job) fixture {
	f := fixture{
		repo:     newMemRepo(jobs...),
		notifier: &recordingNotifier{},
		events:   &recordingEnqueuer{},
		actor:    core.Actor{UserID: "u1", TenantID: "t1", Email: "pe@ellah.com", Role: core.RoleProdutorExecutivo},
	}
	f.svc = NewService(f.repo, f.notifier, f.events, nopLogger{})
	return f
}

func floatPtr(v float64) *float64 { return &v }

func assertAppError(t *testing.T, err error, status int, msg string) {
	t.Helper()
	appErr, ok := core.AsAppError(err)
	require.True(t, ok, "want AppError, got %v", err)
	assert.Equal(t, status, appErr.Status)
	if msg != "" {
		assert.Equal(t, msg, appErr.Message)
	}
}

func TestJob_ComputeMargin(t *testing.T) {
	j := Job{ClosedValue: floatPtr(10000), ProductionCost: floatPtr(6000), OtherCosts: floatPtr(1000), TaxPercentage: 10}
	assert.Equal(t, 1000.0, j.TaxValue())
	assert.Equal(t, 2000.0, *j.GrossProfit())
	assert.Equal(t, 20.0, *j.ComputeMargin())

	assert.Nil(t, Job{}.ComputeMargin())
	assert.Nil(t, Job{ClosedValue: floatPtr(0)}.ComputeMargin())
}

func TestJob_ComputeHealthScore(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	url := "https://drive.example.com/x"

	full := Job{
		Status:               core.JobStatusPreProducao,
		ExpectedStartDate:    core.StrPtr("2026-03-01"),
		ExpectedDeliveryDate: core.StrPtr("2026-04-01"),
		ClosedValue:          floatPtr(1000),
		DriveFolderURL:       &url,
		BudgetLetterURL:      &url,
		ScriptURL:            &url,
	}
	assert.Equal(t, 100, full.ComputeHealthScore(2, now))
	assert.Equal(t, 80, full.ComputeHealthScore(0, now))

	overdue := Job{Status: core.JobStatusPreProducao, ExpectedDeliveryDate: core.StrPtr("2026-03-01")}
	assert.Equal(t, 0, overdue.ComputeHealthScore(0, now))

	overdue.Status = core.JobStatusEntregue
	assert.Equal(t, 20, overdue.ComputeHealthScore(0, now), "closed jobs are never overdue")
}

func TestApplyPatch(t *testing.T) {
	j := Job{Title: "Old", Brand: core.StrPtr("Acme"), ClosedValue: floatPtr(100)}
	tags := []string{"a", "b"}
	changes := applyPatch(&j, UpdateJob{
		Title:       core.StrPtr("New"),
		Brand:       core.StrPtr(""),
		Notes:       core.StrPtr("hello"),
		ClosedValue: floatPtr(100),
		Tags:        &tags,
	})

	assert.Equal(t, "New", j.Title)
	assert.Nil(t, j.Brand)
	assert.Equal(t, "hello", core.StrVal(j.Notes))
	assert.Equal(t, []string{"a", "b"}, []string(j.Tags))
	require.Len(t, changes, 4, "unchanged closed_value is not reported")

	assert.Equal(t, `Titulo alterado de "Old" para "New"; Marca alterado de "Acme" para ""; `+
		`tags alterado de "[]" para "[a b]"; Observacoes definido como "hello"`, describeChanges(changes))
}

func TestUpdateJob_Validate(t *testing.T) {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())

	err := (&UpdateJob{}).Validate(validate)
	assertAppError(t, err, http.StatusBadRequest, "Pelo menos um campo deve ser enviado para atualizacao")

	assert.Error(t, (&UpdateJob{Title: core.StrPtr("  ")}).Validate(validate))
	assert.Error(t, (&UpdateJob{TaxPercentage: floatPtr(120)}).Validate(validate))
	assert.Error(t, (&UpdateJob{Priority: core.StrPtr("urgente")}).Validate(validate))
	assert.NoError(t, (&UpdateJob{Priority: core.StrPtr("alta")}).Validate(validate))
}

func TestService_Create(t *testing.T) {
	f := newFixture()
	j, err := f.svc.Create(context.Background(), f.actor, NewJob{Title: "Filme", ClientID: "c1", JobType: "videoclipe", Priority: "media"})
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusBriefingRecebido, j.Status)
	assert.Equal(t, "u1", core.StrVal(j.CreatedBy))
	require.Len(t, f.repo.history, 1)
	assert.Equal(t, `Job "Filme" criado com status briefing_recebido`, f.repo.history[0].Description)

	_, err = f.svc.Create(context.Background(), f.actor, NewJob{Title: "X", ClientID: "missing", JobType: "outro"})
	assertAppError(t, err, http.StatusBadRequest, "client_id invalido")
}

func TestService_CrossTenantRefs(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		job   NewJob
		field string
	}{
		{"client of another tenant", NewJob{Title: "A", ClientID: "c2", JobType: "outro"}, "client_id"},
		{"agency of another tenant", NewJob{Title: "B", ClientID: "c1", AgencyID: core.StrPtr("a2"), JobType: "outro"}, "agency_id"},
		{"unknown parent job", NewJob{Title: "C", ClientID: "c1", ParentJobID: core.StrPtr("j404"), JobType: "outro"}, "parent_job_id"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.svc.Create(ctx, f.actor, tc.job)
			assertAppError(t, err, http.StatusBadRequest, tc.field+" invalido")
			assert.Empty(t, f.repo.jobs)
			assert.Empty(t, f.repo.history)
		})
	}

	t.Run("update only checks the refs that changed", func(t *testing.T) {
		f := newFixture(Job{ID: "j1", TenantID: "t1", Title: "Filme", Code: "010", ClientID: "legacy"})
		_, err := f.svc.Update(ctx, f.actor, "j1", UpdateJob{Title: core.StrPtr("Filme 2")})
		require.NoError(t, err)

		_, err = f.svc.Update(ctx, f.actor, "j1", UpdateJob{ClientID: core.StrPtr("c2")})
		assertAppError(t, err, http.StatusBadRequest, "client_id invalido")
		assert.Equal(t, "Filme 2", f.repo.jobs["j1"].Title)
		assert.Equal(t, "legacy", f.repo.jobs["j1"].ClientID)
	})
}

func TestService_UpdateMarginAlert(t *testing.T) {
	f := newFixture(Job{ID: "j1", TenantID: "t1", Title: "Filme", Code: "010", ClosedValue: floatPtr(1000), MarginPercentage: floatPtr(50)})
	ctx := context.Background()

	j, err := f.svc.Update(ctx, f.actor, "j1", UpdateJob{ProductionCost: floatPtr(900)})
	require.NoError(t, err)
	assert.Equal(t, 10.0, *j.MarginPercentage)
	require.Len(t, f.events.keys, 1)
	assert.Contains(t, f.events.keys[0], "wf-margin:j1:")
	assert.Equal(t, 10.0, f.events.payloads[0]["margin_percentage"])
	require.Len(t, f.notifier.team, 1)
	assert.Equal(t, notification.TypeMarginAlert, f.notifier.team[0].Type)

	// already under the threshold
	_, err = f.svc.Update(ctx, f.actor, "j1", UpdateJob{ProductionCost: floatPtr(950)})
	require.NoError(t, err)
	assert.Len(t, f.events.keys, 1)

	last := f.repo.history[len(f.repo.history)-1]
	assert.Equal(t, EventFieldUpdate, last.EventType)
	assert.Equal(t, `Custo de producao alterado de "900" para "950"`, last.Description)
}

func TestService_UpdateStatus(t *testing.T) {
	base := Job{ID: "j1", TenantID: "t1", Title: "Filme", Status: core.JobStatusOrcamentoEnviado}
	tests := []struct {
		name      string
		job       Job
		delivered int
		input     UpdateStatus
		wantCode  int
		wantMsg   string
	}{
		{
			name:    "unchanged",
			job:     base,
			input:   UpdateStatus{Status: core.JobStatusOrcamentoEnviado},
			wantMsg: "Status inalterado",
		},
		{
			name:     "approve without values",
			job:      base,
			input:    UpdateStatus{Status: core.JobStatusAprovadoSelecaoDiretor},
			wantCode: http.StatusUnprocessableEntity,
			wantMsg:  "Para aprovar o job, approval_date e closed_value devem estar preenchidos",
		},
		{
			name:     "cancel without reason",
			job:      base,
			input:    UpdateStatus{Status: core.JobStatusCancelado},
			wantCode: http.StatusUnprocessableEntity,
			wantMsg:  "Motivo de cancelamento e obrigatorio",
		},
		{
			name:     "finish without delivery date",
			job:      base,
			input:    UpdateStatus{Status: core.JobStatusFinalizado},
			wantCode: http.StatusUnprocessableEntity,
			wantMsg:  "Data de entrega real (actual_delivery_date) deve estar preenchida para finalizar",
		},
		{
			name:     "delivered without deliverables",
			job:      base,
			input:    UpdateStatus{Status: core.JobStatusEntregue},
			wantCode: http.StatusUnprocessableEntity,
			wantMsg:  `Pelo menos 1 entregavel deve ter status "entregue"`,
		},
		{
			name:     "pause finished job",
			job:      Job{ID: "j1", TenantID: "t1", Status: core.JobStatusFinalizado},
			input:    UpdateStatus{Status: core.JobStatusPausado},
			wantCode: http.StatusUnprocessableEntity,
			wantMsg:  `Nao e possivel pausar um job com status "finalizado"`,
		},
		{
			name:      "delivered",
			job:       base,
			delivered: 1,
			input:     UpdateStatus{Status: core.JobStatusEntregue},
		},
		{
			name:  "cancel",
			job:   base,
			input: UpdateStatus{Status: core.JobStatusCancelado, CancellationReason: core.StrPtr("cliente desistiu")},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(tc.job)
			f.repo.delivered = tc.delivered

			res, err := f.svc.UpdateStatus(context.Background(), f.actor, "j1", tc.input)
			if tc.wantCode != 0 {
				assertAppError(t, err, tc.wantCode, tc.wantMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.input.Status, res.Status)
			assert.Equal(t, tc.wantMsg, res.Message)
			if tc.wantMsg != "" {
				assert.Empty(t, f.repo.history)
				return
			}

			require.Len(t, f.repo.history, 1)
			assert.Equal(t, "Status alterado de orcamento_enviado para "+tc.input.Status, f.repo.history[0].Description)
			require.Len(t, f.notifier.team, 1)
			assert.Equal(t, "Status alterado: "+tc.input.Status, f.notifier.team[0].Title)
			assert.Equal(t, []string{"wf-status:j1:orcamento_enviado:" + tc.input.Status}, f.events.keys)
			assert.Equal(t, "u1", core.StrVal(res.StatusUpdatedBy))
		})
	}
}

func TestService_Approve(t *testing.T) {
	f := newFixture(Job{ID: "j1", TenantID: "t1", Title: "Filme", Code: "010", Status: core.JobStatusAguardandoAprovacao})

	res, err := f.svc.Approve(context.Background(), f.actor, "j1", Approve{
		ApprovalType: "external",
		ApprovalDate: "2026-03-01",
		ClosedValue:  50000,
	})
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusAprovadoSelecaoDiretor, res.Status)
	assert.Equal(t, "external", res.ApprovalType)
	assert.Equal(t, "pe@ellah.com", core.StrVal(res.ApprovedByName))

	stored := f.repo.jobs["j1"]
	assert.Equal(t, ApprovalExternal, *stored.ApprovalType)
	assert.Equal(t, 100.0, *stored.MarginPercentage)
	assert.Equal(t, `Job "Filme" aprovado (external) com valor R$ 50000.00`, f.repo.history[0].Description)
	assert.Equal(t, []string{"wf-approved:j1"}, f.events.keys)
	assert.Equal(t, notification.TypeJobApproved, f.notifier.team[0].Type)
}

func TestService_Delete(t *testing.T) {
	f := newFixture(Job{ID: "j1", TenantID: "t1", Title: "Pai", IsParentJob: true})
	f.repo.activeSubs = 2

	_, err := f.svc.Delete(context.Background(), f.actor, "j1")
	assertAppError(t, err, http.StatusConflict, "Nao e possivel excluir: existem 2 sub-jobs ativos")

	f.repo.activeSubs = 0
	res, err := f.svc.Delete(context.Background(), f.actor, "j1")
	require.NoError(t, err)
	assert.Equal(t, "j1", res.ID)
	assert.Equal(t, `Job "Pai" excluido (soft delete)`, f.repo.history[0].Description)

	_, err = f.svc.Delete(context.Background(), f.actor, "j1")
	assert.Equal(t, ErrNotFound, err)
}

func TestService_AddTeamMember(t *testing.T) {
	f := newFixture(Job{ID: "j1", TenantID: "t1", Title: "Filme", Code: "010"})
	f.repo.conflicts = []ScheduleConflict{{JobID: "j2", JobTitle: "Outro"}}
	ctx := context.Background()

	f.repo.team["seed"] = TeamMember{ID: "seed", JobID: "j9"}
	m, warnings, err := f.svc.AddTeamMember(ctx, f.actor, "j1", TeamMemberData{
		PersonID: core.StrPtr("p1"),
		Role:     core.StrPtr("diretor"),
		Fee:      floatPtr(3000),
	})
	require.NoError(t, err)
	assert.Equal(t, "orcado", m.HiringStatus)
	require.Len(t, warnings, 1)
	assert.Equal(t, "SCHEDULE_CONFLICT", warnings[0].Code)
	assert.Equal(t, `Ana esta alocado em "Outro" em data(s) conflitante(s)`, warnings[0].Message)
	assert.Equal(t, "Ana adicionado como diretor", f.repo.history[0].Description)
	assert.Equal(t, 20, f.repo.healthScores["j1"])
	assert.Empty(t, f.notifier.users, "people without a profile are not notified")

	_, _, err = f.svc.AddTeamMember(ctx, f.actor, "j1", TeamMemberData{PersonID: core.StrPtr("p1"), Role: core.StrPtr("diretor")})
	assertAppError(t, err, http.StatusConflict, "Esta pessoa ja tem esta funcao neste job")
}

func TestService_AddTeamMemberOtherTenantPerson(t *testing.T) {
	f := newFixture(Job{ID: "j1", TenantID: "t1", Title: "Filme", Code: "010"})

	_, _, err := f.svc.AddTeamMember(context.Background(), f.actor, "j1", TeamMemberData{
		PersonID: core.StrPtr("pB"),
		Role:     core.StrPtr("diretor"),
	})
	assertAppError(t, err, http.StatusBadRequest, "person_id invalido")
	assert.Empty(t, f.repo.team)
	assert.Empty(t, f.repo.history)
	assert.Empty(t, f.notifier.users)
	assert.Empty(t, f.repo.healthScores)
}

func TestTeamMemberData_Validate(t *testing.T) {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())

	assert.Error(t, (&TeamMemberData{Role: core.StrPtr("diretor")}).Validate(validate, true))
	assert.Error(t, (&TeamMemberData{PersonID: core.StrPtr("7f1c3a9e-1b2c-4d5e-8f90-123456789abc")}).Validate(validate, true))
	assert.Error(t, (&TeamMemberData{
		PersonID: core.StrPtr("7f1c3a9e-1b2c-4d5e-8f90-123456789abc"),
		Role:     core.StrPtr("astronauta"),
	}).Validate(validate, true))
	assert.NoError(t, (&TeamMemberData{
		PersonID: core.StrPtr("7f1c3a9e-1b2c-4d5e-8f90-123456789abc"),
		Role:     core.StrPtr("dop"),
	}).Validate(validate, true))
	assert.Error(t, (&TeamMemberData{}).Validate(validate, false))
	assert.Error(t, (&TeamMemberData{PersonID: core.StrPtr("x")}).Validate(validate, false))
}

func TestCheckTimes(t *testing.T) {
	assert.Error(t, checkTimes(ShootingDate{StartTime: core.StrPtr("18:00"), EndTime: core.StrPtr("08:00")}))
	assert.NoError(t, checkTimes(ShootingDate{StartTime: core.StrPtr("08:00"), EndTime: core.StrPtr("18:00")}))
	assert.NoError(t, checkTimes(ShootingDate{StartTime: core.StrPtr("08:00")}))
}

package request

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/nexus/core"
	"github.com/trezcool/nexus/core/user"
)

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotFound            = errors.New("request not found")
	ErrForbidden           = errors.New("permission denied")
	ErrInvalidType         = errors.New("invalid request type")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInitNotApproved     = errors.New("an approved \"" + TypeInit + "\" request is required first")
	ErrDesignationRequired = errors.New("this request requires the school to designate an advisor")
	ErrAdvisorRequired     = errors.New("select an advisor")
	ErrAdvisorUnavailable  = errors.New("the selected advisor is not available")
	ErrTopicRequired       = errors.New("enter the project topic")
	ErrObservationRequired = errors.New("enter an observation")
)

type (
	Repository interface {
		CreateRequest(ctx context.Context, req Request) (Request, error)
		GetRequest(ctx context.Context, id string) (Request, error)
		// QueryRequests returns the matching requests, newest first.
		QueryRequests(ctx context.Context, filter QueryFilter) ([]Request, error)
		// UpdateRequest saves req only if the stored status still is fromStatus; otherwise returns ErrInvalidTransition.
		UpdateRequest(ctx context.Context, req Request, fromStatus string) (Request, error)
	}

	// UserDirectory is the read side of the accounts store.
	UserDirectory interface {
		GetByID(ctx context.Context, id string) (user.User, error)
		Query(ctx context.Context, filter user.QueryFilter, orderings []core.DBOrdering) ([]user.User, error)
	}

	// Notifier pushes an entry to a user's notification feed.
	Notifier interface {
		Push(ctx context.Context, userID, typ, text string) error
	}

	Service interface {
		Submit(ctx context.Context, student user.User, nr NewRequest) (Request, error)
		Approve(ctx context.Context, actor user.User, id string) (Request, error)
		Designate(ctx context.Context, actor user.User, id string, nd NewDesignation) (Request, error)
		Observe(ctx context.Context, actor user.User, id, text string) (Request, error)
		Resubmit(ctx context.Context, student user.User, id string, nr NewRequest) (Request, error)
		Get(ctx context.Context, actor user.User, id string) (Request, error)
		Query(ctx context.Context, actor user.User, filter Filter) ([]Request, error)
		Dashboard(ctx context.Context, actor user.User) ([]Folder, error)
		FUT(ctx context.Context, actor user.User, id string) (FUT, error)
		HasApprovedInit(ctx context.Context, studentID string) (bool, error)
		AdvisedStudents(ctx context.Context, advisorID string) ([]string, error)
		Stale(ctx context.Context, before time.Time) ([]Request, error)
	}

	service struct {
		repo     Repository
		users    UserDirectory
		notifier Notifier
		mailSvc  core.EmailService
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, users UserDirectory, notifier Notifier, mailSvc core.EmailService, logger core.Logger) Service {
	return &service{
		repo:     repo,
		users:    users,
		notifier: notifier,
		mailSvc:  mailSvc,
		logger:   logger,
	}
}

func (svc *service) Submit(ctx context.Context, student user.User, nr NewRequest) (Request, error) {
	if !student.IsStudent() {
		return Request{}, ErrForbidden
	}
	return svc.submit(ctx, student, nr, "")
}

func (svc *service) submit(ctx context.Context, student user.User, nr NewRequest, previousID string) (Request, error) {
	details := Details{SchoolDesignates: nr.SchoolDesignates}

	if nr.Type == TypeAdvisor {
		ok, err := svc.HasApprovedInit(ctx, student.ID)
		if err != nil {
			return Request{}, err
		}
		if !ok {
			return Request{}, ErrInitNotApproved
		}
		if nr.ProposedAdvisorID != "" {
			adv, err := svc.activeAdvisor(ctx, nr.ProposedAdvisorID, "proposed_advisor_id")
			if err != nil {
				return Request{}, err
			}
			details.ProposedAdvisorID = adv.ID
			details.ProposedAdvisorName = adv.Name
		}
	}

	schoolCode, err := svc.resolveSchool(ctx, student.Career)
	if err != nil {
		return Request{}, err
	}

	now := nowFunc().UTC()
	req := Request{
		StudentID:   student.ID,
		StudentName: student.Name,
		StudentCode: student.Code,
		School:      student.Career,
		SchoolCode:  schoolCode,
		Type:        nr.Type,
		Status:      StatusPending,
		Details:     details,
		PreviousID:  previousID,
		Date:        now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateRequest(ctx, req)
}

// resolveSchool returns the code of the school whose code or name equals career, ignoring case.
func (svc *service) resolveSchool(ctx context.Context, career string) (string, error) {
	if career == "" {
		return "", nil
	}
	schools, err := svc.users.Query(ctx, user.QueryFilter{Role: user.RoleSchool}, nil)
	if err != nil {
		return "", errors.Wrap(err, "querying schools")
	}
	for _, sch := range schools {
		if strings.EqualFold(sch.Code, career) || strings.EqualFold(sch.Name, career) {
			return sch.Code, nil
		}
	}
	return "", nil
}

func (svc *service) activeAdvisor(ctx context.Context, id, field string) (user.User, error) {
	adv, err := svc.users.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, core.NewFieldError(field, ErrAdvisorUnavailable)
		}
		return user.User{}, errors.Wrap(err, "finding advisor")
	}
	if !adv.IsAdvisor() || !adv.IsAvailable() {
		return user.User{}, core.NewFieldError(field, ErrAdvisorUnavailable)
	}
	return adv, nil
}

// canView reports whether actor may see req.
func canView(actor user.User, req Request) bool {
	switch actor.Role {
	case user.RoleAdmin:
		return true
	case user.RoleSchool:
		return req.SchoolCode != "" && strings.EqualFold(req.SchoolCode, actor.Code)
	case user.RoleStudent:
		return req.StudentID == actor.ID
	case user.RoleAdvisor:
		return req.Designation != nil && req.Designation.AdvisorID == actor.ID
	}
	return false
}

// canDecide reports whether actor may approve, observe or designate req.
func canDecide(actor user.User, req Request) bool {
	return (actor.IsAdmin() || actor.IsSchool()) && canView(actor, req)
}

func (svc *service) getForDecision(ctx context.Context, actor user.User, id string) (Request, error) {
	req, err := svc.repo.GetRequest(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if !canView(actor, req) {
		return Request{}, ErrNotFound
	}
	if !canDecide(actor, req) {
		return Request{}, ErrForbidden
	}
	if !req.IsPending() {
		return Request{}, ErrInvalidTransition
	}
	return req, nil
}

func (svc *service) Approve(ctx context.Context, actor user.User, id string) (Request, error) {
	req, err := svc.getForDecision(ctx, actor, id)
	if err != nil {
		return Request{}, err
	}
	if req.NeedsDesignation() {
		return Request{}, ErrDesignationRequired
	}

	now := nowFunc().UTC()
	if req.Type == TypeAdvisor && req.Details.ProposedAdvisorID != "" {
		req.Designation = &Designation{
			AdvisorID:   req.Details.ProposedAdvisorID,
			AdvisorName: req.Details.ProposedAdvisorName,
			Date:        now,
		}
	}
	req.Status = StatusApproved
	req.UpdatedAt = now
	if req, err = svc.repo.UpdateRequest(ctx, req, StatusPending); err != nil {
		return Request{}, err
	}

	svc.notifyDecision(ctx, req)
	return req, nil
}

func (svc *service) Designate(ctx context.Context, actor user.User, id string, nd NewDesignation) (Request, error) {
	if err := nd.Validate(); err != nil {
		return Request{}, err
	}
	req, err := svc.getForDecision(ctx, actor, id)
	if err != nil {
		return Request{}, err
	}
	if !req.NeedsDesignation() {
		return Request{}, ErrInvalidTransition
	}
	adv, err := svc.activeAdvisor(ctx, nd.AdvisorID, "advisor_id")
	if err != nil {
		return Request{}, err
	}

	now := nowFunc().UTC()
	req.Status = StatusApproved
	req.Designation = &Designation{AdvisorID: adv.ID, AdvisorName: adv.Name, Topic: nd.Topic, Date: now}
	req.UpdatedAt = now
	if req, err = svc.repo.UpdateRequest(ctx, req, StatusPending); err != nil {
		return Request{}, err
	}

	svc.notifyDecision(ctx, req)
	return req, nil
}

func (svc *service) Observe(ctx context.Context, actor user.User, id, text string) (Request, error) {
	text = core.CleanString(text)
	if text == "" {
		return Request{}, core.NewFieldError("observation", ErrObservationRequired)
	}
	req, err := svc.getForDecision(ctx, actor, id)
	if err != nil {
		return Request{}, err
	}

	req.Status = StatusObserved
	req.Observation = text
	req.UpdatedAt = nowFunc().UTC()
	if req, err = svc.repo.UpdateRequest(ctx, req, StatusPending); err != nil {
		return Request{}, err
	}

	svc.notifyDecision(ctx, req)
	return req, nil
}

// Resubmit files a new pending request replacing the observed request id of the student.
// The observed request is left as is; it may be resubmitted once.
func (svc *service) Resubmit(ctx context.Context, student user.User, id string, nr NewRequest) (Request, error) {
	prev, err := svc.repo.GetRequest(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if !student.IsStudent() || prev.StudentID != student.ID {
		return Request{}, ErrNotFound
	}
	if !prev.IsObserved() {
		return Request{}, ErrInvalidTransition
	}
	resubs, err := svc.repo.QueryRequests(ctx, QueryFilter{PreviousID: prev.ID})
	if err != nil {
		return Request{}, errors.Wrap(err, "querying resubmissions")
	}
	if len(resubs) > 0 {
		return Request{}, ErrInvalidTransition
	}

	nr.Type = prev.Type
	return svc.submit(ctx, student, nr, prev.ID)
}

func (svc *service) Get(ctx context.Context, actor user.User, id string) (Request, error) {
	req, err := svc.repo.GetRequest(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if !canView(actor, req) {
		return Request{}, ErrNotFound
	}
	return req, nil
}

func (svc *service) Query(ctx context.Context, actor user.User, filter Filter) ([]Request, error) {
	filter.Clean()
	qf := QueryFilter{Filter: filter}

	switch actor.Role {
	case user.RoleAdmin:
	case user.RoleSchool:
		if actor.Code == "" {
			return []Request{}, nil
		}
		qf.SchoolCode = actor.Code
	case user.RoleStudent:
		qf.StudentID = actor.ID
	case user.RoleAdvisor:
		qf.AdvisorID = actor.ID
	default:
		return []Request{}, nil
	}

	reqs, err := svc.repo.QueryRequests(ctx, qf)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(reqs, func(i, j int) bool { return reqs[i].Date.After(reqs[j].Date) })
	return reqs, nil
}

func (svc *service) Dashboard(ctx context.Context, actor user.User) ([]Folder, error) {
	reqs, err := svc.Query(ctx, actor, Filter{})
	if err != nil {
		return nil, err
	}
	folders := make([]Folder, len(Types))
	idx := make(map[string]int, len(Types))
	for i, typ := range Types {
		folders[i] = Folder{Type: typ}
		idx[typ] = i
	}
	for _, req := range reqs {
		i, ok := idx[req.Type]
		if !ok {
			continue
		}
		folders[i].Total++
		if req.IsPending() {
			folders[i].Pending++
		}
	}
	return folders, nil
}

func (svc *service) FUT(ctx context.Context, actor user.User, id string) (FUT, error) {
	req, err := svc.Get(ctx, actor, id)
	if err != nil {
		return FUT{}, err
	}
	fut := NewFUT(req.StudentName, req.StudentCode, req.School, req.Type, req.Date)
	fut.RequestID = req.ID
	return fut, nil
}

func (svc *service) HasApprovedInit(ctx context.Context, studentID string) (bool, error) {
	reqs, err := svc.repo.QueryRequests(ctx, QueryFilter{
		Filter:    Filter{Type: TypeInit, Status: StatusApproved},
		StudentID: studentID,
	})
	if err != nil {
		return false, errors.Wrap(err, "querying requests")
	}
	return len(reqs) > 0, nil
}

// AdvisedStudents returns the IDs of the students whose approved advisor request designates advisorID.
func (svc *service) AdvisedStudents(ctx context.Context, advisorID string) ([]string, error) {
	reqs, err := svc.repo.QueryRequests(ctx, QueryFilter{
		Filter:    Filter{Type: TypeAdvisor, Status: StatusApproved},
		AdvisorID: advisorID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying requests")
	}
	seen := make(map[string]bool, len(reqs))
	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		if !seen[req.StudentID] {
			seen[req.StudentID] = true
			ids = append(ids, req.StudentID)
		}
	}
	return ids, nil
}

// Stale returns the requests still pending that were submitted before the given time.
func (svc *service) Stale(ctx context.Context, before time.Time) ([]Request, error) {
	return svc.repo.QueryRequests(ctx, QueryFilter{
		Filter:          Filter{Status: StatusPending},
		SubmittedBefore: before,
	})
}

type decisionMailData struct {
	StudentName string
	Type        string
	StatusLabel string
	Observation string
	Topic       string
	AdvisorName string
}

// notifyDecision tells the student (and the designated advisor) about a decision on req.
// Failures are logged: the decision itself is already saved.
func (svc *service) notifyDecision(ctx context.Context, req Request) {
	typ, text := "success", fmt.Sprintf("Tu solicitud de <strong>%s</strong> fue aprobada.", req.Type)
	if req.IsObserved() {
		typ, text = "warning", fmt.Sprintf("Tu solicitud de <strong>%s</strong> fue observada: %s", req.Type, req.Observation)
	}
	if err := svc.notifier.Push(ctx, req.StudentID, typ, text); err != nil {
		svc.logger.Error("notifying student", err, map[string]interface{}{"request_id": req.ID})
	}

	data := decisionMailData{
		StudentName: req.StudentName,
		Type:        req.Type,
		StatusLabel: req.StatusLabel(),
		Observation: req.Observation,
	}
	if des := req.Designation; des != nil {
		data.Topic = des.Topic
		data.AdvisorName = des.AdvisorName
		text := fmt.Sprintf("Has sido designado asesor de <strong>%s</strong>.", req.StudentName)
		if err := svc.notifier.Push(ctx, des.AdvisorID, "info", text); err != nil {
			svc.logger.Error("notifying advisor", err, map[string]interface{}{"request_id": req.ID})
		}
	}

	student, err := svc.users.GetByID(ctx, req.StudentID)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			svc.logger.Error("finding student", err, map[string]interface{}{"request_id": req.ID})
		}
		return
	}
	if addr, ok := student.MailAddress(); ok {
		svc.mailSvc.SendMessages(&core.EmailMessage{
			To:           []mail.Address{addr},
			Subject:      fmt.Sprintf("Solicitud %s: %s", req.Type, req.StatusLabel()),
			TemplateName: "request_decision",
			TemplateData: data,
		})
	}
}

package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/nexus/core/ctxutil"
	"github.com/trezcool/nexus/core/request"
)

const requestColumns = `id::text, student_id::text, student_name, student_code, school, school_code, type, status,
	school_designates, proposed_advisor_id, proposed_advisor_name,
	designation_advisor_id, designation_advisor_name, designation_topic, designation_date,
	observation, COALESCE(previous_id::text, '') AS previous_id, date, updated_at`

// insertRequestQuery is a named query: sqlx reads "::" as an escaped colon, so casts are spelled CAST(.. AS ..).
const insertRequestQuery = `INSERT INTO requests (
		id, student_id, student_name, student_code, school, school_code, type, status,
		school_designates, proposed_advisor_id, proposed_advisor_name,
		designation_advisor_id, designation_advisor_name, designation_topic, designation_date,
		observation, previous_id, date, updated_at)
	VALUES (
		:id, :student_id, :student_name, :student_code, :school, :school_code, :type, :status,
		:school_designates, :proposed_advisor_id, :proposed_advisor_name,
		:designation_advisor_id, :designation_advisor_name, :designation_topic, :designation_date,
		:observation, CAST(NULLIF(:previous_id, '') AS uuid), :date, :updated_at)`

// requestRow is the flat table shape of request.Request.
type requestRow struct {
	ID                     string         `db:"id"`
	StudentID              string         `db:"student_id"`
	StudentName            string         `db:"student_name"`
	StudentCode            string         `db:"student_code"`
	School                 string         `db:"school"`
	SchoolCode             string         `db:"school_code"`
	Type                   string         `db:"type"`
	Status                 string         `db:"status"`
	SchoolDesignates       bool           `db:"school_designates"`
	ProposedAdvisorID      string         `db:"proposed_advisor_id"`
	ProposedAdvisorName    string         `db:"proposed_advisor_name"`
	DesignationAdvisorID   sql.NullString `db:"designation_advisor_id"`
	DesignationAdvisorName sql.NullString `db:"designation_advisor_name"`
	DesignationTopic       sql.NullString `db:"designation_topic"`
	DesignationDate        sql.NullTime   `db:"designation_date"`
	Observation            string         `db:"observation"`
	PreviousID             string         `db:"previous_id"`
	Date                   time.Time      `db:"date"`
	UpdatedAt              time.Time      `db:"updated_at"`
}

func newRequestRow(req request.Request) requestRow {
	row := requestRow{
		ID:                  req.ID,
		StudentID:           req.StudentID,
		StudentName:         req.StudentName,
		StudentCode:         req.StudentCode,
		School:              req.School,
		SchoolCode:          req.SchoolCode,
		Type:                req.Type,
		Status:              req.Status,
		SchoolDesignates:    req.Details.SchoolDesignates,
		ProposedAdvisorID:   req.Details.ProposedAdvisorID,
		ProposedAdvisorName: req.Details.ProposedAdvisorName,
		Observation:         req.Observation,
		PreviousID:          req.PreviousID,
		Date:                req.Date,
		UpdatedAt:           req.UpdatedAt,
	}
	if des := req.Designation; des != nil {
		row.DesignationAdvisorID = sql.NullString{String: des.AdvisorID, Valid: true}
		row.DesignationAdvisorName = sql.NullString{String: des.AdvisorName, Valid: true}
		row.DesignationTopic = sql.NullString{String: des.Topic, Valid: true}
		row.DesignationDate = sql.NullTime{Time: des.Date, Valid: true}
	}
	return row
}

func (row requestRow) toRequest() request.Request {
	req := request.Request{
		ID:          row.ID,
		StudentID:   row.StudentID,
		StudentName: row.StudentName,
		StudentCode: row.StudentCode,
		School:      row.School,
		SchoolCode:  row.SchoolCode,
		Type:        row.Type,
		Status:      row.Status,
		Details: request.Details{
			SchoolDesignates:    row.SchoolDesignates,
			ProposedAdvisorID:   row.ProposedAdvisorID,
			ProposedAdvisorName: row.ProposedAdvisorName,
		},
		Observation: row.Observation,
		PreviousID:  row.PreviousID,
		Date:        row.Date.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
	if row.DesignationAdvisorID.Valid {
		req.Designation = &request.Designation{
			AdvisorID:   row.DesignationAdvisorID.String,
			AdvisorName: row.DesignationAdvisorName.String,
			Topic:       row.DesignationTopic.String,
			Date:        row.DesignationDate.Time.UTC(),
		}
	}
	return req
}

type requestRepository struct {
	db *sqlx.DB
}

var _ request.Repository = (*requestRepository)(nil)

func NewRequestRepository(db *sqlx.DB) request.Repository {
	return &requestRepository{db: db}
}

func (repo *requestRepository) CreateRequest(ctx context.Context, req request.Request) (request.Request, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	if req.ID == "" {
		req.ID = newID()
	}
	row := newRequestRow(req)
	if _, err := repo.db.NamedExecContext(ctx, insertRequestQuery, row); err != nil {
		if constraint, ok := uniqueViolated(err); ok && constraint == "requests_previous_id_key" {
			return request.Request{}, request.ErrInvalidTransition
		}
		return request.Request{}, errors.Wrap(err, "inserting request")
	}
	return req, nil
}

func (repo *requestRepository) GetRequest(ctx context.Context, id string) (request.Request, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var row requestRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+requestColumns+` FROM requests WHERE id::text = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return request.Request{}, request.ErrNotFound
		}
		return request.Request{}, errors.Wrap(err, "selecting request")
	}
	return row.toRequest(), nil
}

// requestWhere translates filter into a WHERE clause (see request.QueryFilter.Match).
func requestWhere(filter request.QueryFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Type != "" {
		conds = append(conds, "type = "+arg(filter.Type))
	}
	if filter.Status != "" {
		conds = append(conds, "status = "+arg(filter.Status))
	}
	if filter.StudentID != "" {
		conds = append(conds, "student_id::text = "+arg(filter.StudentID))
	}
	if filter.SchoolCode != "" {
		conds = append(conds, "UPPER(school_code) = UPPER("+arg(filter.SchoolCode)+")")
	}
	if filter.AdvisorID != "" {
		conds = append(conds, "designation_advisor_id = "+arg(filter.AdvisorID))
	}
	if filter.PreviousID != "" {
		conds = append(conds, "previous_id::text = "+arg(filter.PreviousID))
	}
	if !filter.SubmittedBefore.IsZero() {
		conds = append(conds, "date < "+arg(filter.SubmittedBefore))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (repo *requestRepository) QueryRequests(ctx context.Context, filter request.QueryFilter) ([]request.Request, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	where, args := requestWhere(filter)
	var rows []requestRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT `+requestColumns+` FROM requests`+where+` ORDER BY date DESC`, args...); err != nil {
		return nil, errors.Wrap(err, "selecting requests")
	}
	reqs := make([]request.Request, len(rows))
	for i, row := range rows {
		reqs[i] = row.toRequest()
	}
	return reqs, nil
}

// UpdateRequest is a compare-and-set on status: the first decision wins.
func (repo *requestRepository) UpdateRequest(ctx context.Context, req request.Request, fromStatus string) (request.Request, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	q := `UPDATE requests SET
			status = $1, observation = $2,
			designation_advisor_id = $3, designation_advisor_name = $4, designation_topic = $5, designation_date = $6,
			updated_at = $7
		WHERE id::text = $8 AND status = $9`
	row := newRequestRow(req)
	res, err := repo.db.ExecContext(ctx, q,
		row.Status, row.Observation,
		row.DesignationAdvisorID, row.DesignationAdvisorName, row.DesignationTopic, row.DesignationDate,
		row.UpdatedAt, row.ID, fromStatus,
	)
	if err != nil {
		return request.Request{}, errors.Wrap(err, "updating request")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return request.Request{}, errors.Wrap(err, "updating request")
	}
	if n == 0 {
		if _, err := repo.GetRequest(ctx, req.ID); err != nil {
			return request.Request{}, err
		}
		return request.Request{}, request.ErrInvalidTransition
	}
	return req, nil
}

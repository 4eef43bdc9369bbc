// Package export renders requests and accounts as Excel workbooks.
package export

import (
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/nexus/core/request"
	"github.com/trezcool/nexus/core/user"
)

const dateLayout = "02/01/2006"

type SheetSpec struct {
	Title  string
	Header []string
	Rows   [][]string
}

// NewWorkbook builds one sheet per SheetSpec, with a bold filtered header and widths fitted to the content.
func NewWorkbook(sheets []SheetSpec) (*excelize.File, error) {
	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, errors.Wrap(err, "creating header style")
	}

	for i, s := range sheets {
		name := s.Title
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return nil, errors.Wrap(err, "renaming sheet")
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, errors.Wrap(err, "creating sheet")
		}

		for c, h := range s.Header {
			cell, _ := excelize.CoordinatesToCellName(c+1, 1)
			if err := f.SetCellStr(name, cell, h); err != nil {
				return nil, errors.Wrapf(err, "setting cell %s", cell)
			}
		}
		if len(s.Header) > 0 {
			end, _ := excelize.CoordinatesToCellName(len(s.Header), 1)
			_ = f.SetCellStyle(name, "A1", end, bold)
			_ = f.AutoFilter(name, "A1:"+end, nil)
		}

		for r, row := range s.Rows {
			for c, val := range row {
				cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
				if err := f.SetCellStr(name, cell, val); err != nil {
					return nil, errors.Wrapf(err, "setting cell %s", cell)
				}
			}
		}
		fitColumns(f, s)
	}
	return f, nil
}

// fitColumns sizes columns after the header and the first rows, between 12 and 40.
func fitColumns(f *excelize.File, s SheetSpec) {
	for c := range s.Header {
		width := len([]rune(s.Header[c]))
		for r := 0; r < len(s.Rows) && r < 50; r++ {
			if c < len(s.Rows[r]) {
				if l := len([]rune(s.Rows[r][c])); l > width {
					width = l
				}
			}
		}
		w := float64(width) * 1.1
		if w < 12 {
			w = 12
		}
		if w > 40 {
			w = 40
		}
		col, _ := excelize.ColumnNumberToName(c + 1)
		_ = f.SetColWidth(s.Title, col, col, w)
	}
}

func RequestsSheet(reqs []request.Request) SheetSpec {
	s := SheetSpec{
		Title:  "Solicitudes",
		Header: []string{"Fecha", "Estudiante", "Código", "Escuela", "Trámite", "Estado", "Asesor", "Tema", "Observación"},
		Rows:   make([][]string, 0, len(reqs)),
	}
	for _, req := range reqs {
		var advisor, topic string
		if des := req.Designation; des != nil {
			advisor, topic = des.AdvisorName, des.Topic
		} else if req.Details.ProposedAdvisorName != "" {
			advisor = req.Details.ProposedAdvisorName + " (propuesto)"
		}
		s.Rows = append(s.Rows, []string{
			req.Date.Format(dateLayout),
			req.StudentName,
			req.StudentCode,
			req.School,
			req.Type,
			req.StatusLabel(),
			advisor,
			topic,
			req.Observation,
		})
	}
	return s
}

func AccountsSheet(users []user.User) SheetSpec {
	s := SheetSpec{
		Title:  "Cuentas",
		Header: []string{"Rol", "Nombre", "Usuario", "Correo", "Carrera", "Código", "Especialidad", "Estado", "Facultad", "Creado"},
		Rows:   make([][]string, 0, len(users)),
	}
	for _, usr := range users {
		s.Rows = append(s.Rows, []string{
			user.RoleLabel(usr.Role),
			usr.Name,
			usr.Username,
			usr.Email,
			usr.Career,
			usr.Code,
			usr.Specialty,
			usr.Status,
			usr.Faculty,
			usr.CreatedAt.Format(dateLayout),
		})
	}
	return s
}

// Write renders the workbook of sheets into w.
func Write(w io.Writer, sheets ...SheetSpec) error {
	f, err := NewWorkbook(sheets)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteTo(w); err != nil {
		return errors.Wrap(err, "writing workbook")
	}
	return nil
}

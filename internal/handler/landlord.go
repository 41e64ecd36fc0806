package handler

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/rentportal/internal/model"
	"github.com/mmeshcher/rentportal/internal/validation"
)

// maxPropertyUpload ограничивает размер формы объекта вместе с изображениями.
const maxPropertyUpload = 20 << 20

// LandlordProperties возвращает объекты арендодателя.
func (h *Handler) LandlordProperties(w http.ResponseWriter, r *http.Request) {
	props, err := h.service.LandlordProperties(r.Context(), h.session(r), r.URL.Query())
	if err != nil {
		h.apiFailure(w, r, "get landlord properties", err)
		return
	}
	if len(props) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, props)
}

// propertyUpload проверяет, что запрос несёт multipart-форму, и ограничивает её размер.
func propertyUpload(w http.ResponseWriter, r *http.Request) (model.PropertyUpload, bool) {
	ct := r.Header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil || mediaType != "multipart/form-data" || params["boundary"] == "" {
		writeError(w, http.StatusUnsupportedMediaType, "multipart/form-data expected")
		return model.PropertyUpload{}, false
	}
	return model.PropertyUpload{
		Body:        http.MaxBytesReader(w, r.Body, maxPropertyUpload),
		ContentType: ct,
	}, true
}

// CreateProperty передаёт API форму нового объекта недвижимости.
func (h *Handler) CreateProperty(w http.ResponseWriter, r *http.Request) {
	upload, ok := propertyUpload(w, r)
	if !ok {
		return
	}
	if err := h.service.CreateProperty(r.Context(), h.session(r), upload); err != nil {
		h.apiFailure(w, r, "create property", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// UpdateProperty передаёт API обновлённую форму объекта недвижимости.
func (h *Handler) UpdateProperty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid property id")
		return
	}
	upload, ok := propertyUpload(w, r)
	if !ok {
		return
	}
	if err := h.service.UpdateProperty(r.Context(), h.session(r), id, upload); err != nil {
		h.apiFailure(w, r, "update property", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DeleteProperty удаляет объект недвижимости.
func (h *Handler) DeleteProperty(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid property id")
		return
	}
	if err := h.service.DeleteProperty(r.Context(), h.session(r), id); err != nil {
		h.apiFailure(w, r, "delete property", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LandlordTenants возвращает арендаторов арендодателя.
func (h *Handler) LandlordTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.service.LandlordTenants(r.Context(), h.session(r))
	if err != nil {
		h.apiFailure(w, r, "get tenants", err)
		return
	}
	if len(tenants) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, tenants)
}

// AddTenant добавляет арендатора к объекту арендодателя.
func (h *Handler) AddTenant(w http.ResponseWriter, r *http.Request) {
	var req model.NewTenant
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "")
		return
	}
	if err := validation.ValidateNewTenant(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.AddTenant(r.Context(), h.session(r), req); err != nil {
		h.apiFailure(w, r, "add tenant", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// RemoveTenant снимает арендатора с объекта.
func (h *Handler) RemoveTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}
	if err := h.service.RemoveTenant(r.Context(), h.session(r), id); err != nil {
		h.apiFailure(w, r, "remove tenant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Report возвращает отчёт арендодателя за период в JSON либо, при format=csv, файлом CSV.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	kind := model.ReportKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		writeError(w, http.StatusNotFound, "unknown report")
		return
	}

	q := r.URL.Query()
	period := model.ReportRange{StartDate: q.Get("startDate"), EndDate: q.Get("endDate")}
	if err := validation.ValidateDateRange(period.StartDate, period.EndDate); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := h.service.Report(r.Context(), h.session(r), kind, period)
	if err != nil {
		h.apiFailure(w, r, "get report", err)
		return
	}

	if q.Get("format") != "csv" {
		writeJSON(w, http.StatusOK, nonNil(rows))
		return
	}

	filename := fmt.Sprintf("%s_%s.csv", kind, time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	if err := writeCSV(w, rows); err != nil {
		h.logger.Warn("write report csv error", zap.Error(err))
	}
}

// writeCSV пишет строки отчёта; колонки — объединение ключей всех строк в алфавитном порядке.
func writeCSV(w http.ResponseWriter, rows []map[string]any) error {
	seen := make(map[string]struct{})
	var columns []string
	for _, row := range rows {
		for k := range row {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)

	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, c := range columns {
			record[i] = csvValue(row[c])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

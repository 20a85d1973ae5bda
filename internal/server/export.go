package server

import (
	"context"
	"net/http"
	"strconv"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *handlers) exportRules(w http.ResponseWriter, r *http.Request) {
	h.writeXLSX(w, r, "rules.xlsx", h.Export.RulesXLSX)
}

func (h *handlers) exportBacklog(w http.ResponseWriter, r *http.Request) {
	h.writeXLSX(w, r, "backlog.xlsx", h.Export.BacklogXLSX)
}

func (h *handlers) writeXLSX(w http.ResponseWriter, r *http.Request, name string, build func(context.Context) ([]byte, error)) {
	data, err := build(r.Context())
	if err != nil {
		h.logger.Error("export.xlsx.failed", "file", name, "err", err)
		h.writeError(w, r, status.Errorf(codes.Internal, "export %s: %v", name, err))
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

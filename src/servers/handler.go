package servers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/bililive-go/docstore/src/consts"
	"github.com/bililive-go/docstore/src/pkg/cache"
	"github.com/bililive-go/docstore/src/pkg/history"
)

type commonResp struct {
	ErrNo  int    `json:"err_no"`
	ErrMsg string `json:"err_msg"`
	Data   any    `json:"data"`
}

func writeJsonWithStatusCode(writer http.ResponseWriter, code int, obj any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(code)
	if err := json.NewEncoder(writer).Encode(obj); err != nil {
		logrus.WithError(err).Warn("failed to write response")
	}
}

func writeJSON(writer http.ResponseWriter, obj any) {
	writeJsonWithStatusCode(writer, http.StatusOK, commonResp{Data: obj})
}

func writeError(writer http.ResponseWriter, code int, err error) {
	writeJsonWithStatusCode(writer, code, commonResp{ErrNo: code, ErrMsg: err.Error()})
}

type handler struct {
	migrator Migrator
	history  HistoryReader
	// status 短时间缓存 Status 结果，避免轮询压到搜索集群上；
	// 与 Finalize 的缓存失效共用，key 带缓存前缀
	status    *cache.Local
	statusKey string
	baseCtx   context.Context
}

func getInfo(writer http.ResponseWriter, r *http.Request) {
	writeJSON(writer, consts.GetAppInfo())
}

func (h *handler) getStatus(writer http.ResponseWriter, r *http.Request) {
	if v, ok := h.status.Get(h.statusKey); ok && r.URL.Query().Get("refresh") == "" {
		writeJSON(writer, v)
		return
	}
	status, err := h.migrator.Status(r.Context())
	if err != nil {
		writeError(writer, http.StatusInternalServerError, err)
		return
	}
	h.status.SetWithExpire(h.statusKey, status, statusCacheTTL)
	writeJSON(writer, status)
}

func (h *handler) getHistory(writer http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(writer, []history.Event{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		writeError(writer, http.StatusInternalServerError, err)
		return
	}
	if events == nil {
		events = []history.Event{}
	}
	writeJSON(writer, events)
}

// run 同步执行迁移，客户端断开不会中断迁移
func (h *handler) run(writer http.ResponseWriter, r *http.Request) {
	defer h.invalidateStatus()
	result, err := h.migrator.Run(h.baseCtx)
	if err != nil {
		writeJsonWithStatusCode(writer, http.StatusInternalServerError, commonResp{
			ErrNo:  http.StatusInternalServerError,
			ErrMsg: err.Error(),
			Data:   result,
		})
		return
	}
	if result.Failed != nil {
		writeJsonWithStatusCode(writer, http.StatusConflict, commonResp{
			ErrNo:  http.StatusConflict,
			ErrMsg: result.Failed.Name + ": " + result.Failed.Error(),
			Data:   result,
		})
		return
	}
	writeJSON(writer, result)
}

func (h *handler) finalize(writer http.ResponseWriter, r *http.Request) {
	defer h.invalidateStatus()
	result, err := h.migrator.Finalize(h.baseCtx)
	if err != nil {
		writeJsonWithStatusCode(writer, http.StatusInternalServerError, commonResp{
			ErrNo:  http.StatusInternalServerError,
			ErrMsg: err.Error(),
			Data:   result,
		})
		return
	}
	writeJSON(writer, result)
}

func (h *handler) invalidateStatus() {
	h.status.Remove(h.statusKey)
}

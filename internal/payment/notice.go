package payment

import (
	"github.com/mmeshcher/rentportal/internal/model"
	"github.com/mmeshcher/rentportal/internal/validation"
)

// NoticeKind описывает тип уведомления о ходе оплаты.
type NoticeKind string

const (
	NoticeNone          NoticeKind = ""
	NoticeInitiated     NoticeKind = "initiated"
	NoticePending       NoticeKind = "pending"
	NoticeCompleted     NoticeKind = "completed"
	NoticeFailed        NoticeKind = "failed"
	NoticePollingHalted NoticeKind = "polling_halted"
	NoticeCheckFailed   NoticeKind = "check_failed"
)

// Notice — сообщение для пользователя о состоянии попытки оплаты.
type Notice struct {
	Kind    NoticeKind
	Message string
}

// IsError сообщает, нужно ли показать уведомление как ошибку.
func (n Notice) IsError() bool {
	return n.Kind == NoticeFailed || n.Kind == NoticeCheckFailed
}

func noticeInitiated(phone string) Notice {
	return Notice{
		Kind:    NoticeInitiated,
		Message: "STK push sent to " + validation.MaskPhone(phone) + "! Check your phone for M-Pesa prompt.",
	}
}

func noticePollingHalted() Notice {
	return Notice{
		Kind:    NoticePollingHalted,
		Message: "Payment is still pending. Automatic checks have stopped, use manual check to refresh the status.",
	}
}

func noticeCheckFailed() Notice {
	return Notice{Kind: NoticeCheckFailed, Message: "Failed to check payment status"}
}

// statusNotice строит уведомление по статусу. Автоматический опрос не сообщает о
// продолжающемся ожидании, ручная проверка сообщает.
func statusNotice(status model.PaymentStatus, manual bool) Notice {
	switch status {
	case model.PaymentStatusCompleted:
		return Notice{Kind: NoticeCompleted, Message: "Payment completed successfully!"}
	case model.PaymentStatusFailed:
		if manual {
			return Notice{Kind: NoticeFailed, Message: "Payment failed."}
		}
		return Notice{Kind: NoticeFailed, Message: "Payment failed. Please try again."}
	}
	if manual {
		return Notice{Kind: NoticePending, Message: "Payment still pending..."}
	}
	return Notice{}
}

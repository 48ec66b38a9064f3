package state

import (
	"errors"
	"fmt"
	"time"

	"ai-profile-studio/internal/generation"
)

const (
	shortTTL = 3 * time.Second
	longTTL  = 5 * time.Second
)

const (
	msgCredentialSaved   = "API 키가 성공적으로 저장되었습니다."
	msgCredentialCleared = "API 키가 삭제되었습니다."
	msgSafetyOverride    = "안전 필터: '비키니' 선택 시, 생성 성공률을 높이기 위해 구도를 \"미디엄샷\"으로 자동 변경했습니다."
	msgUploaded          = "참조 이미지가 업로드되었습니다."
	msgUploadFailed      = "이미지를 처리하는 중 오류가 발생했습니다."
	msgGenerating        = "이미지 생성을 시작합니다... 잠시만 기다려주세요."
	msgGenerated         = "이미지 생성이 완료되었습니다!"
	msgDownloadAll       = "모든 이미지를 다운로드합니다."
	msgReset             = "모든 옵션이 초기화되었습니다."
	msgUnknownFailure    = "알 수 없는 오류가 발생했습니다."
)

// FailureMessage turns a generation error into the text shown to the user.
func FailureMessage(err error) string {
	var ge *generation.Error
	if !errors.As(err, &ge) {
		if err == nil {
			return msgUnknownFailure
		}
		return err.Error()
	}

	switch ge.Kind {
	case generation.KindMissingCredential:
		return "Gemini API 키가 제공되지 않았습니다. 사이드바에서 키를 설정해주세요."
	case generation.KindInvalidCredential:
		return "제공된 API 키가 유효하지 않습니다. 키를 확인하고 다시 시도해주세요."
	case generation.KindQuotaExceeded:
		return "API 할당량을 초과했습니다. 잠시 후 다시 시도하거나 Google Cloud에서 요금제 및 결제 세부정보를 확인하세요."
	case generation.KindEmptyResult:
		return "API가 이미지를 반환하지 않았습니다. 모든 생성이 차단되었을 수 있습니다."
	}
	if ge.Message == "" {
		return msgUnknownFailure
	}
	return ge.Message
}

func completionMessage(res generation.Result) string {
	if res.Failed > 0 && res.Requested > 0 {
		return fmt.Sprintf("%s (%d개 중 %d개 성공)", msgGenerated, res.Requested, res.Requested-res.Failed)
	}
	return msgGenerated
}

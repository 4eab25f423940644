package auth

import (
	"context"
	"errors"

	"google.golang.org/api/idtoken"
)

var ErrInvalidGoogleToken = errors.New("invalid google id token")

// GoogleUserInfo 검증된 ID 토큰에서 추출한 프로필
type GoogleUserInfo struct {
	ID      string
	Email   string
	Name    string
	Picture string
}

// GoogleAuthenticator Google ID 토큰 검증기
// 로그인 핸들러가 받은 id_token의 서명과 audience를 확인하고
// 계정 프로필 클레임을 꺼낸다.
type GoogleAuthenticator struct {
	clientID string
}

// NewGoogleAuthenticator GoogleAuthenticator 생성
func NewGoogleAuthenticator(clientID string) *GoogleAuthenticator {
	return &GoogleAuthenticator{clientID: clientID}
}

// VerifyIDToken ID 토큰 검증 후 사용자 정보 반환
// 이메일 미인증 계정과 이메일 클레임이 없는 토큰은 거부한다.
func (g *GoogleAuthenticator) VerifyIDToken(ctx context.Context, token string) (*GoogleUserInfo, error) {
	payload, err := idtoken.Validate(ctx, token, g.clientID)
	if err != nil {
		return nil, ErrInvalidGoogleToken
	}

	if verified, _ := payload.Claims["email_verified"].(bool); !verified {
		return nil, errors.New("google account email not verified")
	}
	email, _ := payload.Claims["email"].(string)
	if email == "" {
		return nil, ErrInvalidGoogleToken
	}

	info := &GoogleUserInfo{
		ID:    payload.Subject,
		Email: email,
	}
	info.Name, _ = payload.Claims["name"].(string)
	info.Picture, _ = payload.Claims["picture"].(string)
	return info, nil
}

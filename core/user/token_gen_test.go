package user

import (
	"testing"
	"time"
)

func TestMakeVerifyToken(t *testing.T) {
	tg := newTokenGenerator("secret", 3*24*time.Hour)

	now := time.Now()
	usr := User{
		ID:        "0b6f7f4e-3c1c-4a53-9a4c-6f1d2f0c1a11",
		FullName:  "T",
		Email:     "t@test.test",
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		LastLogin: &now,
	}
	_ = usr.SetPassword("pwd")

	validToken := tg.makeToken(usr)

	// generate an expired token
	dayLate := tg.timeout + (24 * time.Hour)
	tg.nowFunc = func() time.Time { return time.Now().Add(-dayLate) }
	expiredToken := tg.makeToken(usr)
	tg.nowFunc = time.Now // reset

	// a password change invalidates previous tokens
	changed := usr
	_ = changed.SetPassword("other")

	tests := []struct {
		name    string
		usr     User
		token   string
		wantErr error
	}{
		{name: "no token", usr: usr, wantErr: errInvalidToken},
		{name: "invalid parts len", usr: usr, token: "lmaooolol", wantErr: errInvalidToken},
		{name: "invalid base32", usr: usr, token: "hahaha-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid timestamp", usr: usr, token: "NRXWY-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid token", usr: usr, token: "HE4TS-sigsig-sig", wantErr: errInvalidToken},
		{name: "expired token", usr: usr, token: expiredToken, wantErr: errTokenExpired},
		{name: "password changed", usr: changed, token: validToken, wantErr: errInvalidToken},
		{name: "valid token", usr: usr, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tg.verifyToken(tt.usr, tt.token); err != tt.wantErr {
				t.Errorf("verifyToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeDecodeUID(t *testing.T) {
	usr := User{ID: "0b6f7f4e-3c1c-4a53-9a4c-6f1d2f0c1a11"}
	id, err := decodeUID(EncodeUID(usr))
	if err != nil || id != usr.ID {
		t.Errorf("decodeUID(EncodeUID()) = %q, %v; want %q", id, err, usr.ID)
	}
}

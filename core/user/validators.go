package user

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/ellahos/ellahos/core"
)

var (
	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("a senha deve conter pelo menos %d caracteres", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "a senha nao pode conter espacos"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "a senha nao pode ser inteiramente numerica"

	pwdComplexityTag  = "pwdcplx"
	pwdComplexityText = "a senha deve conter pelo menos 1 letra maiuscula, 1 minuscula, 1 digito e 1 caractere especial"
	specialRegex      = regexp.MustCompile("[^A-Za-z0-9]")

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "a senha e muito parecida com os dados do usuario"

	pwdNoCommonTag  = "pwdnocommon"
	pwdNoCommonText = "a senha e muito comum"
	commonPasswords = make([]string, 0, 1024)
)

// InitValidators registers the password policy on `validate`.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(userStructValidation, NewUser{}, UpdateUser{}, ResetUserPassword{})
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(validate, translator, pwdComplexityTag, pwdComplexityText)
	core.RegisterCustomTranslation(validate, translator, pwdAttrSimTag, pwdAttrSimText)
	core.RegisterCustomTranslation(validate, translator, pwdNoCommonTag, pwdNoCommonText)
}

// LoadCommonPasswords reads <WorkDir>/assets/common-passwords.txt.gz, if present.
func LoadCommonPasswords(conf *core.Config, logger core.Logger) {
	pwdAssetPath := filepath.Join(conf.WorkDir, "assets", "common-passwords.txt.gz")
	file, err := os.Open(pwdAssetPath)
	if err != nil {
		logger.Warn(fmt.Sprintf("loading common passwords: %v", err))
		return
	}
	//goland:noinspection GoUnhandledErrorResult
	defer file.Close()

	gzRdr, err := gzip.NewReader(file)
	if err != nil {
		logger.Warn(fmt.Sprintf("loading common passwords: %v", err))
		return
	}
	pwds := commonPasswords[:0]
	scanner := bufio.NewScanner(gzRdr)
	for scanner.Scan() {
		if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
			pwds = append(pwds, strings.ToLower(pwd))
		}
	}
	sort.Strings(pwds)
	commonPasswords = pwds
}

// userStructValidation does struct level validation on NewUser, UpdateUser and ResetUserPassword structs.
func userStructValidation(sl validator.StructLevel) {
	switch usr := sl.Current().Interface().(type) {
	case NewUser:
		validatePassword(usr.Password, sl, usr.FullName, usr.Email)
	case UpdateUser:
		if usr.Password != "" {
			validatePassword(usr.Password, sl, core.StrVal(usr.FullName), usr.email)
		}
	case ResetUserPassword:
		validatePassword(usr.Password, sl)
	}
}

// validatePassword applies the password policy to provided password:
// - minLen: 8
// - no whitespace
// - no all numeric
// - complexity: 1 upper, 1 lower, 1 digit, 1 special
// - no user attrs similarity
// - no common password
func validatePassword(pwd string, sl validator.StructLevel, usrAttrs ...string) {
	if pwd == "" {
		return // reported by `required`
	}
	reportErr := func(tag string) {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}

	var (
		digitCount                             int
		hasUpper, hasLower, hasDig, hasSpecial bool
	)

	runes := []rune(pwd)
	if len(runes) < pwdMinLen {
		reportErr(pwdMinLenTag)
		return
	}
	for _, char := range runes {
		if unicode.IsSpace(char) {
			reportErr(pwdNoSpaceTag)
			return
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
		if !hasUpper && unicode.IsUpper(char) {
			hasUpper = true
		}
		if !hasLower && unicode.IsLower(char) {
			hasLower = true
		}
	}

	if digitCount == len(runes) {
		reportErr(pwdNotAllNumTag)
		return
	}

	hasDig = digitCount > 0
	hasSpecial = specialRegex.MatchString(pwd)
	if !(hasUpper && hasLower && hasDig && hasSpecial) {
		reportErr(pwdComplexityTag)
		return
	}

	for _, attr := range usrAttrs {
		if passwordSimilarity(pwd, attr) >= pwdMaxSim {
			reportErr(pwdAttrSimTag)
			return
		}
	}

	lpwd := strings.ToLower(pwd)
	if idx := sort.SearchStrings(commonPasswords, lpwd); idx < len(commonPasswords) {
		if match := commonPasswords[idx]; lpwd == match {
			reportErr(pwdNoCommonTag)
			return
		}
	}
}

func passwordSimilarity(pwd, usrAttr string) float64 {
	if usrAttr == "" {
		return 0
	}
	pwd, usrAttr = strings.ToLower(pwd), strings.ToLower(usrAttr)
	return difflib.NewMatcher(strings.Split(pwd, ""), strings.Split(usrAttr, "")).QuickRatio()
}

package main

import (
	"strings"
	"testing"
)

const loginStory = "Como usuario quiero iniciar sesión para acceder al sistema"

func TestEvaluateIndependentDetectsDependencies(t *testing.T) {
	ok, suggestions := EvaluateIndependent(loginStory)
	if !ok {
		t.Fatalf("expected login story to be independent, got suggestions %v", suggestions)
	}

	dependent := "Como admin quiero editar permisos una vez que el módulo de usuarios esté listo"
	ok, suggestions = EvaluateIndependent(dependent)
	if ok {
		t.Fatalf("expected dependency phrase to fail the criterion")
	}
	if len(suggestions) == 0 {
		t.Fatalf("expected at least one suggestion for a failed criterion")
	}
}

func TestEvaluateNegotiableRejectsImplementationDetail(t *testing.T) {
	ok, _ := EvaluateNegotiable(loginStory)
	if !ok {
		t.Fatalf("expected login story to be negotiable")
	}

	technical := "Como usuario quiero guardar mis datos en la base de datos sql del servidor"
	ok, suggestions := EvaluateNegotiable(technical)
	if ok {
		t.Fatalf("expected implementation detail to fail the criterion")
	}
	if len(suggestions) < 1 {
		t.Fatalf("expected suggestions, got none")
	}

	rigid := "Como usuario quiero que el formato sea exactamente como el documento adjunto obligatoriamente"
	if ok, _ := EvaluateNegotiable(rigid); ok {
		t.Fatalf("expected rigidity markers to fail the criterion")
	}
}

func TestEvaluateValuableRequiresBenefit(t *testing.T) {
	ok, _ := EvaluateValuable(loginStory)
	if !ok {
		t.Fatalf("expected 'para acceder' to count as a benefit")
	}

	noBenefit := "Como usuario quiero cerrar mi cuenta"
	ok, suggestions := EvaluateValuable(noBenefit)
	if ok {
		t.Fatalf("expected a story without a benefit clause to fail")
	}
	found := false
	for _, s := range suggestions {
		if strings.Contains(s, "beneficio") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a benefit suggestion, got %v", suggestions)
	}
}

func TestAccentedMarkersFailCriteria(t *testing.T) {
	exclusive := "Como usuario quiero ver el informe únicamente en formato PDF"
	if ok, _ := EvaluateNegotiable(exclusive); ok {
		t.Fatalf("expected exclusivity marker to fail the criterion")
	}

	conditional := "Como usuario quiero consultar mi saldo cuando la cuenta esté verificada"
	ok, suggestions := EvaluateIndependent(conditional)
	if ok {
		t.Fatalf("expected conditional precondition to fail the criterion")
	}
	if len(suggestions) == 0 {
		t.Fatalf("expected at least one suggestion for a failed criterion")
	}

	arbitrary := "Como usuario quiero cambiar el color del botón porque sí"
	ok, suggestions = EvaluateValuable(arbitrary)
	if ok {
		t.Fatalf("expected an arbitrary justification to fail the criterion")
	}
	found := false
	for _, s := range suggestions {
		if strings.Contains(s, "valor de negocio") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a business-value suggestion, got %v", suggestions)
	}
}

func TestEvaluateEstimable(t *testing.T) {
	ok, _ := EvaluateEstimable(loginStory)
	if !ok {
		t.Fatalf("expected nine-word story to be estimable")
	}

	short := "Como usuario quiero ver informes"
	if ok, _ := EvaluateEstimable(short); ok {
		t.Fatalf("expected a story under eight words to fail")
	}

	vague := "Como usuario quiero que el proceso de registro sea más eficiente y adecuado"
	if ok, _ := EvaluateEstimable(vague); ok {
		t.Fatalf("expected vague qualifiers to fail the criterion")
	}

	risky := "Como operador quiero lanzar la migración de cuentas para consolidar los datos antiguos"
	if ok, _ := EvaluateEstimable(risky); ok {
		t.Fatalf("expected open-ended complexity terms to fail the criterion")
	}
}

func TestEvaluateSmall(t *testing.T) {
	ok, _ := EvaluateSmall(loginStory)
	if !ok {
		t.Fatalf("expected short single-action story to be small")
	}

	multiVerb := "Como admin quiero crear y editar y eliminar informes del equipo"
	ok, suggestions := EvaluateSmall(multiVerb)
	if ok {
		t.Fatalf("expected multiple action verbs to fail the criterion")
	}
	if len(suggestions) == 0 {
		t.Fatalf("expected suggestions for the failed criterion")
	}

	long := strings.Repeat("palabra ", 26) + "final"
	if ok, _ := EvaluateSmall(long); ok {
		t.Fatalf("expected a story over 25 words to fail")
	}
}

func TestEvaluateTestable(t *testing.T) {
	// No verifiable action or testable element in the login story.
	ok, suggestions := EvaluateTestable(loginStory)
	if ok {
		t.Fatalf("expected login story to fail testability")
	}
	if len(suggestions) == 0 {
		t.Fatalf("expected suggestions for the failed criterion")
	}

	verifiable := "Como usuario quiero ver mis pedidos para confirmar el estado de cada envío"
	if ok, _ := EvaluateTestable(verifiable); !ok {
		t.Fatalf("expected a verifiable action to pass")
	}

	subjective := "Como usuario quiero ver un panel intuitivo para revisar mis datos personales"
	if ok, _ := EvaluateTestable(subjective); ok {
		t.Fatalf("expected subjective qualifiers to fail the criterion")
	}
}

// Every evaluator must hand back at least one suggestion whenever it
// fails, so downstream reports never show a bare rejection.
func TestFailedCriteriaAlwaysCarrySuggestions(t *testing.T) {
	stories := []string{
		"",
		"Como usuario quiero",
		"Como admin quiero crear y editar y eliminar y exportar todo el contenido una vez que el sistema esté optimizado con la base de datos sql porque sí",
		"Refactorizar el módulo de pagos",
	}
	for _, story := range stories {
		for _, ev := range ruleEvaluators {
			ok, suggestions := ev.Evaluate(story)
			if !ok && len(suggestions) == 0 {
				t.Fatalf("criterion %s failed %q without suggestions", ev.Criterion, story)
			}
		}
	}
}

func TestCleanTextAndCountWords(t *testing.T) {
	cleaned := CleanText("  Como   usuario\tquiero “ver”  ")
	if cleaned != `Como usuario quiero "ver"` {
		t.Fatalf("unexpected cleaned text %q", cleaned)
	}
	if got := CountWords(loginStory); got != 9 {
		t.Fatalf("expected 9 words, got %d", got)
	}
	if got := CountWords("   "); got != 0 {
		t.Fatalf("expected 0 words for blank text, got %d", got)
	}
}

func TestValidateStoryFormat(t *testing.T) {
	valid := []string{
		loginStory,
		"como administrador necesito exportar reportes",
		"Como cliente deseo recibir notificaciones",
	}
	for _, story := range valid {
		if !ValidateStoryFormat(story) {
			t.Fatalf("expected %q to be a valid story shape", story)
		}
	}

	invalid := []string{"", "quiero iniciar sesión", "como usuario del sistema"}
	for _, story := range invalid {
		if ValidateStoryFormat(story) {
			t.Fatalf("expected %q to be rejected", story)
		}
	}
}

func TestExtractUserRole(t *testing.T) {
	if role := ExtractUserRole(loginStory); role != "usuario" {
		t.Fatalf("expected role usuario, got %q", role)
	}
	if role := ExtractUserRole("Como gerente de ventas quiero ver el tablero"); role != "gerente de ventas" {
		t.Fatalf("expected multi-word role, got %q", role)
	}
	if role := ExtractUserRole("sin formato de historia"); role != "usuario" {
		t.Fatalf("expected fallback role, got %q", role)
	}
}

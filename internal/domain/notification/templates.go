package notification

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

// ══════════════════════════════════════════════════════════════════════════════
// RENDERED CONTENT
// ══════════════════════════════════════════════════════════════════════════════

// Content - готовое к отправке письмо.
type Content struct {
	Subject string
	Text    string
	HTML    string
}

type templateSource struct {
	subject string
	text    string
	html    string
}

// Шаблоны получают .Data (payload) и .AppURL.
var sources = map[Kind]map[string]templateSource{
	KindMissionReleased: {
		"es": {
			subject: `🌟 ¡Nueva Misión del Mes disponible!`,
			text:    `La Comandante Corazón ha revelado una nueva misión para {{.Data.childName}}: {{.Data.missionTitle}}. Visita {{.AppURL}}/missions para comenzar.`,
			html:    `<h1>¡Nueva Misión Épica Revelada!</h1><p>La <strong>Comandante Corazón</strong> ha revelado una nueva misión para {{.Data.childName}}:</p><h2>{{.Data.missionTitle}}</h2>` + button(`{{.AppURL}}/missions`, "Ver Misión"),
		},
		"en": {
			subject: `🌟 New Monthly Mission Available!`,
			text:    `Commander Heart has revealed a new mission for {{.Data.childName}}: {{.Data.missionTitle}}. Visit {{.AppURL}}/missions to begin.`,
			html:    `<h1>New Epic Mission Revealed!</h1><p><strong>Commander Heart</strong> has revealed a new mission for {{.Data.childName}}:</p><h2>{{.Data.missionTitle}}</h2>` + button(`{{.AppURL}}/missions`, "View Mission"),
		},
	},
	KindChallengeCompleted: {
		"es": {
			subject: `🎉 {{.Data.childName}} completó un reto`,
			text:    `¡{{.Data.childName}} completó el reto "{{.Data.challengeTitle}}"!{{if .Data.points}} Ganó {{.Data.points}} puntos Luz.{{end}} Revisa los detalles en {{.AppURL}}/dashboard`,
			html:    `<h1>¡Felicitaciones!</h1><p>{{.Data.childName}} ha completado el reto: <strong>{{.Data.challengeTitle}}</strong></p>{{if .Data.points}}<p>+{{.Data.points}} puntos Luz</p>{{end}}` + button(`{{.AppURL}}/dashboard`, "Ver Detalles"),
		},
		"en": {
			subject: `🎉 {{.Data.childName}} completed a challenge`,
			text:    `{{.Data.childName}} completed the challenge "{{.Data.challengeTitle}}"!{{if .Data.points}} They earned {{.Data.points}} Luz points.{{end}} Review details at {{.AppURL}}/dashboard`,
			html:    `<h1>Congratulations!</h1><p>{{.Data.childName}} has completed the challenge: <strong>{{.Data.challengeTitle}}</strong></p>{{if .Data.points}}<p>+{{.Data.points}} Luz points</p>{{end}}` + button(`{{.AppURL}}/dashboard`, "View Details"),
		},
	},
	KindRankUp: {
		"es": {
			subject: `⭐ ¡{{.Data.childName}} subió de rango a {{.Data.newRank}}!`,
			text:    `¡{{.Data.childName}} ascendió a {{.Data.newRank}}! Celebra su logro en {{.AppURL}}/profile`,
			html:    `<h1>¡Ascenso de Rango!</h1><p>{{.Data.childName}} ha alcanzado el rango de <strong>{{.Data.newRank}}</strong>.</p>` + button(`{{.AppURL}}/profile`, "Ver Perfil"),
		},
		"en": {
			subject: `⭐ {{.Data.childName}} ranked up to {{.Data.newRank}}!`,
			text:    `{{.Data.childName}} ranked up to {{.Data.newRank}}! Celebrate at {{.AppURL}}/profile`,
			html:    `<h1>Rank Up!</h1><p>{{.Data.childName}} has reached the rank of <strong>{{.Data.newRank}}</strong>.</p>` + button(`{{.AppURL}}/profile`, "View Profile"),
		},
	},
	KindBadgeEarned: {
		"es": {
			subject: `🏆 {{.Data.childName}} ganó una insignia: {{.Data.badgeName}}`,
			text:    `¡{{.Data.childName}} ganó "{{.Data.badgeName}}"! Ver colección en {{.AppURL}}/badges`,
			html:    `<h1>¡Nueva Insignia Desbloqueada!</h1><p>{{.Data.childName}} ha ganado: <strong>{{.Data.badgeName}}</strong></p>` + button(`{{.AppURL}}/badges`, "Ver Insignias"),
		},
		"en": {
			subject: `🏆 {{.Data.childName}} earned a badge: {{.Data.badgeName}}`,
			text:    `{{.Data.childName}} earned "{{.Data.badgeName}}"! View the collection at {{.AppURL}}/badges`,
			html:    `<h1>New Badge Unlocked!</h1><p>{{.Data.childName}} has earned: <strong>{{.Data.badgeName}}</strong></p>` + button(`{{.AppURL}}/badges`, "View Badges"),
		},
	},
	KindEventReminder: {
		"es": {
			subject: `📅 Recordatorio: {{.Data.eventTitle}}`,
			text:    `Recordatorio: "{{.Data.eventTitle}}". ¡No te lo pierdas! {{.AppURL}}/events`,
			html:    `<h1>Evento en Vivo Próximo</h1><p>No olvides el evento: <strong>{{.Data.eventTitle}}</strong></p>` + button(`{{.AppURL}}/events`, "Ver Evento"),
		},
		"en": {
			subject: `📅 Reminder: {{.Data.eventTitle}}`,
			text:    `Reminder: "{{.Data.eventTitle}}". Don't miss it! {{.AppURL}}/events`,
			html:    `<h1>Upcoming Live Event</h1><p>Don't forget the event: <strong>{{.Data.eventTitle}}</strong></p>` + button(`{{.AppURL}}/events`, "View Event"),
		},
	},
	KindSubscriptionExpiring: {
		"es": {
			subject: `⏰ Tu suscripción vence en {{.Data.daysRemaining}} días`,
			text:    `Tu suscripción vence en {{.Data.daysRemaining}} días. Renueva en {{.AppURL}}/subscription`,
			html:    `<h1>Renovación de Suscripción</h1><p>Tu suscripción vence en {{.Data.daysRemaining}} días.</p>` + button(`{{.AppURL}}/subscription`, "Renovar Ahora"),
		},
		"en": {
			subject: `⏰ Your subscription expires in {{.Data.daysRemaining}} days`,
			text:    `Your subscription expires in {{.Data.daysRemaining}} days. Renew at {{.AppURL}}/subscription`,
			html:    `<h1>Subscription Renewal</h1><p>Your subscription expires in {{.Data.daysRemaining}} days.</p>` + button(`{{.AppURL}}/subscription`, "Renew Now"),
		},
	},
	KindSystemAnnouncement: {
		"es": {
			subject: `📢 Anuncio importante del Club`,
			text:    `{{with .Data.message}}{{.}} {{end}}Visita {{.AppURL}} para más detalles.`,
			html:    `<h1>Anuncio del Club</h1><p>{{with .Data.message}}{{.}}{{else}}Tenemos noticias importantes para compartir contigo.{{end}}</p>` + button(`{{.AppURL}}`, "Leer Más"),
		},
		"en": {
			subject: `📢 Important Club Announcement`,
			text:    `{{with .Data.message}}{{.}} {{end}}Visit {{.AppURL}} for details.`,
			html:    `<h1>Club Announcement</h1><p>{{with .Data.message}}{{.}}{{else}}We have important news to share with you.{{end}}</p>` + button(`{{.AppURL}}`, "Read More"),
		},
	},
}

func button(href, label string) string {
	return `<p><a href="` + href + `" style="background:#f59e0b;color:#fff;padding:12px 24px;text-decoration:none;border-radius:8px;display:inline-block;">` + label + `</a></p>`
}

// ══════════════════════════════════════════════════════════════════════════════
// RENDERER
// ══════════════════════════════════════════════════════════════════════════════

type compiled struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

// Renderer рендерит письма по виду и языку. Потокобезопасен после создания.
type Renderer struct {
	appURL    string
	templates map[Kind]map[string]compiled
}

// NewRenderer компилирует все шаблоны.
func NewRenderer(appURL string) (*Renderer, error) {
	r := &Renderer{
		appURL:    strings.TrimRight(appURL, "/"),
		templates: make(map[Kind]map[string]compiled, len(sources)),
	}
	for kind, langs := range sources {
		r.templates[kind] = make(map[string]compiled, len(langs))
		for lang, src := range langs {
			name := string(kind) + "." + lang
			subj, err := texttemplate.New(name + ".subject").Option("missingkey=zero").Parse(src.subject)
			if err != nil {
				return nil, fmt.Errorf("%w: %s subject: %v", ErrTemplateError, name, err)
			}
			text, err := texttemplate.New(name + ".text").Option("missingkey=zero").Parse(src.text)
			if err != nil {
				return nil, fmt.Errorf("%w: %s text: %v", ErrTemplateError, name, err)
			}
			html, err := htmltemplate.New(name + ".html").Option("missingkey=zero").Parse(src.html)
			if err != nil {
				return nil, fmt.Errorf("%w: %s html: %v", ErrTemplateError, name, err)
			}
			r.templates[kind][lang] = compiled{subject: subj, text: text, html: html}
		}
	}
	return r, nil
}

// Render возвращает письмо. Неизвестный язык заменяется на испанский.
func (r *Renderer) Render(msg Message, lang string) (Content, error) {
	if err := msg.Validate(); err != nil {
		return Content{}, err
	}
	if msg.Language != "" {
		lang = msg.Language
	}
	byLang := r.templates[msg.Kind]
	t, ok := byLang[lang]
	if !ok {
		t = byLang["es"]
	}

	payload := msg.Payload
	if payload == nil {
		payload = map[string]string{}
	}
	data := struct {
		Data   map[string]string
		AppURL string
	}{Data: payload, AppURL: r.appURL}

	var subj, text, html bytes.Buffer
	if err := t.subject.Execute(&subj, data); err != nil {
		return Content{}, fmt.Errorf("%w: %v", ErrTemplateError, err)
	}
	if err := t.text.Execute(&text, data); err != nil {
		return Content{}, fmt.Errorf("%w: %v", ErrTemplateError, err)
	}
	if err := t.html.Execute(&html, data); err != nil {
		return Content{}, fmt.Errorf("%w: %v", ErrTemplateError, err)
	}

	return Content{
		Subject: strings.TrimSpace(subj.String()),
		Text:    strings.TrimSpace(text.String()),
		HTML:    html.String(),
	}, nil
}

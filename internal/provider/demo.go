package provider

import (
	"context"
	"time"
)

// Demo pacing: snapshots grow three runes at a time, one tick apart, so the
// frontend exercises the same incremental rendering path as a real stream.
const demoChunkRunes = 3

var demoChunkDelay = 20 * time.Millisecond

const demoHeader = `# ¡Hola! Soy FitBot 💪

## 🚀 Configuración requerida
Para funcionar completamente, necesito que configures una API key de OpenAI en el archivo ` + "`.env`" + `:

` + "```bash" + `
OPENAI_API_KEY=tu_clave_openai_aqui
` + "```" + `

## 📝 Tu consulta
> **Pregunta:** `

const demoBody = `

## 💡 Consejos generales mientras configuras la API

### 🏋️ Principios básicos del entrenamiento:
1. **Consistencia** - Mantén una rutina regular
2. **Progresión** - Aumenta gradualmente la intensidad
3. **Descanso** - Permite recuperación muscular
4. **Nutrición** - Alimenta tu cuerpo correctamente

### 📊 Ejemplo de rutina semanal

| Día | Actividad | Duración |
|-----|-----------|----------|
| Lunes | Fuerza (Tren superior) | 45 min |
| Martes | Cardio | 30 min |
| Miércoles | Fuerza (Tren inferior) | 45 min |
| Jueves | Descanso activo | 20 min |
| Viernes | Fuerza (Cuerpo completo) | 50 min |
| Sábado | Cardio/Actividad libre | 30-60 min |
| Domingo | Descanso | - |

### 🥗 Macronutrientes esenciales
- **Proteína:** 1.6-2.2g por kg de peso corporal
- **Carbohidratos:** 3-7g por kg (según actividad)
- **Grasas:** 20-35% del total calórico

> **⚠️ Importante:** Consulta con un profesional antes de iniciar cualquier programa de ejercicios intenso.

¡Configura tu **API key** para obtener respuestas personalizadas y planes específicos para tus objetivos! 🎯`

// demoDocument renders the canned reply, embedding the user's question.
func demoDocument(question string) string {
	return demoHeader + question + demoBody
}

// streamDemo feeds the canned document through the stream with vendor-like
// pacing. Cancellation stops the feed early; the stream still closes cleanly.
func (g *Gateway) streamDemo(ctx context.Context, s *Stream, question string) {
	defer s.Close()

	doc := []rune(demoDocument(question))
	ticker := time.NewTicker(demoChunkDelay)
	defer ticker.Stop()

	for i := demoChunkRunes; ; i += demoChunkRunes {
		if i > len(doc) {
			i = len(doc)
		}
		if !s.Push(ctx, string(doc[:i])) {
			return
		}
		if i == len(doc) {
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
